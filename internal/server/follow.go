package server

import (
	"net/http"

	"yatube/internal/models"
)

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, user *models.User) {
	page, err := s.postPage(r, models.PostFilter{FollowerID: &user.ID})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "follow", map[string]any{
		"User":  user,
		"Title": "Posts from authors you follow",
		"Page":  page,
	})
}

// handleFollow subscribes the caller to the author. Following yourself or
// someone you already follow changes nothing.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request, user *models.User) {
	author := s.lookupAuthor(w, r)
	if author == nil {
		return
	}
	if r.Method == http.MethodPost && user.ID != author.ID {
		if err := models.FollowAuthor(s.db(r), user.ID, author.ID); err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request, user *models.User) {
	author := s.lookupAuthor(w, r)
	if author == nil {
		return
	}
	if r.Method == http.MethodPost {
		if err := models.UnfollowAuthor(s.db(r), user.ID, author.ID); err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}
