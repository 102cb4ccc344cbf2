package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"yatube/internal/forms"
	"yatube/internal/models"
	"yatube/internal/paginate"
)

// uploadSlack leaves room for the text fields next to a maximum size image.
const uploadSlack = 1 << 20

func (s *Server) postPage(r *http.Request, f models.PostFilter) (paginate.Page[models.Post], error) {
	db := s.db(r)
	count, err := models.CountPosts(db, f)
	if err != nil {
		return paginate.Page[models.Post]{}, err
	}
	return paginate.Get(s.paginator, count, r.URL.Query().Get("page"), func(offset, limit int) ([]models.Post, error) {
		return models.ListPosts(db, f, offset, limit)
	})
}

// lookupPost resolves the {id} path value. It writes the 404 or 500 response
// itself and returns nil in that case.
func (s *Server) lookupPost(w http.ResponseWriter, r *http.Request) *models.Post {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 0)
	if err != nil {
		s.notFound(w, r)
		return nil
	}
	post, err := models.GetPost(s.db(r), uint(id))
	if errors.Is(err, models.ErrNotFound) {
		s.notFound(w, r)
		return nil
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil
	}
	return post
}

func (s *Server) lookupAuthor(w http.ResponseWriter, r *http.Request) *models.User {
	author, err := models.GetUserByUsername(s.db(r), r.PathValue("username"))
	if errors.Is(err, models.ErrNotFound) {
		s.notFound(w, r)
		return nil
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil
	}
	return author
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := s.postPage(r, models.PostFilter{})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "index", map[string]any{
		"Title": "Latest updates",
		"Page":  page,
	})
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	group, err := models.GetGroupBySlug(s.db(r), r.PathValue("slug"))
	if errors.Is(err, models.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	page, err := s.postPage(r, models.PostFilter{GroupID: &group.ID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "group_list", map[string]any{
		"Group": group,
		"Page":  page,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	author := s.lookupAuthor(w, r)
	if author == nil {
		return
	}
	user := s.currentUser(r)
	following := false
	if user != nil {
		var err error
		following, err = models.IsFollowing(s.db(r), user.ID, author.ID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	page, err := s.postPage(r, models.PostFilter{AuthorID: &author.ID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "profile", map[string]any{
		"User":       user,
		"Author":     author,
		"Following":  following,
		"CanFollow":  user != nil && user.ID != author.ID,
		"PostsCount": page.Count,
		"Page":       page,
	})
}

func (s *Server) handlePostDetail(w http.ResponseWriter, r *http.Request) {
	post := s.lookupPost(w, r)
	if post == nil {
		return
	}
	db := s.db(r)
	postsCount, err := models.CountPosts(db, models.PostFilter{AuthorID: &post.AuthorID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	comments, err := models.ListComments(db, post.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	user := s.currentUser(r)
	s.render(w, r, http.StatusOK, "post_detail", map[string]any{
		"User":       user,
		"Post":       post,
		"PostsCount": postsCount,
		"Form":       forms.NewCommentForm(),
		"Comments":   comments,
		"CanEdit":    authorizeEdit(user, post).Authorized,
	})
}

func (s *Server) renderPostForm(w http.ResponseWriter, r *http.Request, user *models.User, form *forms.PostForm, post *models.Post) {
	groups, err := models.ListGroups(s.db(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "create_post", map[string]any{
		"User":   user,
		"Form":   form,
		"Groups": groups,
		"IsEdit": post != nil,
		"Post":   post,
	})
}

// bindPost parses and validates a submitted post form. ok is false when the
// form has errors; err is set only for store failures.
func (s *Server) bindPost(w http.ResponseWriter, r *http.Request) (form *forms.PostForm, ok bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+uploadSlack)
	form = forms.ParsePostForm(r, s.cfg.MaxUploadBytes)
	db := s.db(r)
	ok, err = form.Validate(func(id uint) (bool, error) {
		_, err := models.GetGroup(db, id)
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	})
	return form, ok, err
}

// savePost applies a valid form to post and stores any uploaded image.
func (s *Server) savePost(form *forms.PostForm, post *models.Post) error {
	form.Apply(post)
	if form.Image == nil {
		return nil
	}
	path, err := s.media.SavePostImage(form.Image.Ext(), form.Image.Data)
	if err != nil {
		return err
	}
	post.Image = path
	return nil
}

// dropUpload deletes the image savePost wrote for a post that was not stored.
func (s *Server) dropUpload(form *forms.PostForm, post *models.Post) {
	if form.Image == nil || post.Image == "" {
		return
	}
	if err := s.media.Remove(post.Image); err != nil {
		slog.Warn("server: Failed to remove orphaned upload", "path", post.Image, "error", err)
	}
}

func (s *Server) handlePostCreate(w http.ResponseWriter, r *http.Request, user *models.User) {
	switch r.Method {
	case http.MethodGet:
		s.renderPostForm(w, r, user, forms.NewPostForm(nil), nil)

	case http.MethodPost:
		form, ok, err := s.bindPost(w, r)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !ok {
			s.renderPostForm(w, r, user, form, nil)
			return
		}
		post := &models.Post{AuthorID: user.ID}
		if err := s.savePost(form, post); err != nil {
			s.serverError(w, r, err)
			return
		}
		if err := models.CreatePost(s.db(r), post); err != nil {
			s.dropUpload(form, post)
			s.serverError(w, r, err)
			return
		}
		slog.Debug("server: Post created", "post_id", post.ID, "author", user.Username)
		http.Redirect(w, r, profileURL(user.Username), http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePostEdit(w http.ResponseWriter, r *http.Request, user *models.User) {
	post := s.lookupPost(w, r)
	if post == nil {
		return
	}
	if d := authorizeEdit(user, post); !d.Authorized {
		http.Redirect(w, r, d.RedirectTo, http.StatusFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.renderPostForm(w, r, user, forms.NewPostForm(post), post)

	case http.MethodPost:
		form, ok, err := s.bindPost(w, r)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !ok {
			s.renderPostForm(w, r, user, form, post)
			return
		}
		if err := s.savePost(form, post); err != nil {
			s.serverError(w, r, err)
			return
		}
		if err := models.UpdatePost(s.db(r), post); err != nil {
			s.dropUpload(form, post)
			s.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, postURL(post.ID), http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleComment always returns to the post. An invalid comment is dropped
// and only logged.
func (s *Server) handleComment(w http.ResponseWriter, r *http.Request, user *models.User) {
	post := s.lookupPost(w, r)
	if post == nil {
		return
	}
	if r.Method == http.MethodPost {
		form := forms.ParseCommentForm(r)
		if form.Validate() {
			c := &models.Comment{PostID: &post.ID, AuthorID: user.ID, Text: form.Text}
			if err := models.CreateComment(s.db(r), c); err != nil {
				s.serverError(w, r, err)
				return
			}
		} else {
			slog.Info("server: Dropped invalid comment", "post_id", post.ID, "user", user.Username, "errors", form.Errors)
		}
	}
	http.Redirect(w, r, postURL(post.ID), http.StatusFound)
}
