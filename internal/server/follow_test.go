package server

import (
	"net/http"
	"testing"

	"yatube/internal/models"
)

func TestFollowUnfollow(t *testing.T) {
	srv, _ := newTestServer(t)
	anna, annaCookie := newUser(t, srv, "anna")
	bob, _ := newUser(t, srv, "bob")

	w := do(t, srv, http.MethodPost, "/profile/bob/follow/", nil, annaCookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/profile/bob/" {
		t.Fatalf("follow: %d %q", w.Code, w.Header().Get("Location"))
	}
	do(t, srv, http.MethodPost, "/profile/bob/follow/", nil, annaCookie)
	if n := countRows(t, srv, &models.Follow{}); n != 1 {
		t.Fatalf("following twice should keep one record, got %d", n)
	}
	if ok, _ := models.IsFollowing(srv.DB, anna.ID, bob.ID); !ok {
		t.Fatalf("anna should follow bob")
	}

	w = do(t, srv, http.MethodPost, "/profile/bob/unfollow/", nil, annaCookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/profile/bob/" {
		t.Fatalf("unfollow: %d %q", w.Code, w.Header().Get("Location"))
	}
	if n := countRows(t, srv, &models.Follow{}); n != 0 {
		t.Fatalf("unfollow left %d records", n)
	}
	if w := do(t, srv, http.MethodPost, "/profile/bob/unfollow/", nil, annaCookie); w.Code != http.StatusFound {
		t.Fatalf("unfollowing twice: %d", w.Code)
	}
}

func TestFollowSelfIsIgnored(t *testing.T) {
	srv, _ := newTestServer(t)
	_, cookie := newUser(t, srv, "anna")

	w := do(t, srv, http.MethodPost, "/profile/anna/follow/", nil, cookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/profile/anna/" {
		t.Fatalf("self follow: %d %q", w.Code, w.Header().Get("Location"))
	}
	if n := countRows(t, srv, &models.Follow{}); n != 0 {
		t.Fatalf("self follow stored %d records", n)
	}
}

func TestFollowRequiresLoginAndPost(t *testing.T) {
	srv, _ := newTestServer(t)
	newUser(t, srv, "anna")
	_, bobCookie := newUser(t, srv, "bob")

	w := do(t, srv, http.MethodPost, "/profile/anna/follow/", nil, nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/auth/login/?next=/profile/anna/follow/" {
		t.Fatalf("guest follow: %d %q", w.Code, w.Header().Get("Location"))
	}
	do(t, srv, http.MethodGet, "/profile/anna/follow/", nil, bobCookie)
	if n := countRows(t, srv, &models.Follow{}); n != 0 {
		t.Fatalf("GET must not follow, got %d records", n)
	}
	if w := do(t, srv, http.MethodPost, "/profile/nobody/follow/", nil, bobCookie); w.Code != http.StatusNotFound {
		t.Fatalf("follow unknown user: %d", w.Code)
	}
}

func TestFeed(t *testing.T) {
	srv, rec := newTestServer(t)
	_, annaCookie := newUser(t, srv, "anna")
	bob, _ := newUser(t, srv, "bob")
	_, carlCookie := newUser(t, srv, "carl")
	dave, _ := newUser(t, srv, "dave")
	newPost(t, srv, dave, "from dave", nil)

	do(t, srv, http.MethodPost, "/profile/bob/follow/", nil, annaCookie)
	p := newPost(t, srv, bob, "from bob", nil)

	do(t, srv, http.MethodGet, "/follow/", nil, annaCookie)
	page := pageOf(t, rec)
	if page.Count != 1 || page.Items[0].ID != p.ID {
		t.Fatalf("follower feed: %+v", page.Items)
	}

	do(t, srv, http.MethodGet, "/follow/", nil, carlCookie)
	if page := pageOf(t, rec); page.Count != 0 {
		t.Fatalf("non-follower sees %d posts", page.Count)
	}

	do(t, srv, http.MethodPost, "/profile/bob/unfollow/", nil, annaCookie)
	do(t, srv, http.MethodGet, "/follow/", nil, annaCookie)
	if page := pageOf(t, rec); page.Count != 0 {
		t.Fatalf("feed kept posts after unfollow")
	}
}
