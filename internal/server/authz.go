package server

import (
	"fmt"
	"net/url"

	"yatube/internal/models"
)

// Decision is the outcome of an authorization check: either the caller may go
// ahead, or they are sent to RedirectTo instead.
type Decision struct {
	Authorized bool
	RedirectTo string
}

func allow() Decision {
	return Decision{Authorized: true}
}

func redirectTo(target string) Decision {
	return Decision{RedirectTo: target}
}

// authorizeEdit lets only the author edit a post; anyone else is sent back
// to the post page.
func authorizeEdit(user *models.User, post *models.Post) Decision {
	if user != nil && user.ID == post.AuthorID {
		return allow()
	}
	return redirectTo(postURL(post.ID))
}

func postURL(id uint) string {
	return fmt.Sprintf("/posts/%d/", id)
}

func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}
