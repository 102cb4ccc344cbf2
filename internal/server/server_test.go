package server

import (
	"bytes"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"yatube/internal/config"
	"yatube/internal/db"
	"yatube/internal/forms"
	"yatube/internal/models"
)

// recordingRenderer keeps the last template name and context it rendered.
type recordingRenderer struct {
	next Renderer
	name string
	data map[string]any
}

func (rr *recordingRenderer) Render(w io.Writer, name string, data map[string]any) error {
	rr.name = name
	rr.data = data
	return rr.next.Render(w, name, data)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TemplateDir = "../../web/templates"
	cfg.StaticDir = "../../web/static"
	cfg.MediaDir = filepath.Join(t.TempDir(), "media")
	cfg.CacheTTL = 0
	return cfg
}

func newServerWithConfig(t *testing.T, cfg config.Config) (*Server, *recordingRenderer) {
	t.Helper()
	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { db.Close(database) })
	srv, err := New(database, cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	rec := &recordingRenderer{next: srv.renderer}
	srv.renderer = rec
	return srv, rec
}

func newTestServer(t *testing.T) (*Server, *recordingRenderer) {
	t.Helper()
	return newServerWithConfig(t, testConfig(t))
}

// newUser creates a user with a live session and returns the session cookie.
func newUser(t *testing.T, srv *Server, username string) (*models.User, *http.Cookie) {
	t.Helper()
	u, err := models.CreateUser(srv.DB, username, "", "unused")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sid := uuid.NewString()
	if err := models.CreateSession(srv.DB, u.ID, sid, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return u, &http.Cookie{Name: srv.CookieName, Value: sid}
}

func newPost(t *testing.T, srv *Server, author *models.User, text string, group *models.Group) *models.Post {
	t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID}
	if group != nil {
		p.GroupID = &group.ID
	}
	if err := models.CreatePost(srv.DB, p); err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func newGroup(t *testing.T, srv *Server, slug string) *models.Group {
	t.Helper()
	g, err := models.CreateGroup(srv.DB, "Test group", slug, "Test description")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func do(t *testing.T, srv http.Handler, method, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func countRows(t *testing.T, srv *Server, model any) int64 {
	t.Helper()
	var n int64
	if err := srv.DB.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSignupLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	form := url.Values{"username": {"anna"}, "email": {"a@b.com"}, "password1": {"secret"}, "password2": {"secret"}}
	w := do(t, srv, http.MethodPost, "/auth/signup/", form, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("signup code %d", w.Code)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatalf("signup should log the user in")
	}

	form = url.Values{"username": {"anna"}, "password": {"secret"}, "next": {"/create/"}}
	w = do(t, srv, http.MethodPost, "/auth/login/", form, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("login code %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/create/" {
		t.Fatalf("login should follow next, got %q", loc)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookie set")
	}

	w = do(t, srv, http.MethodGet, "/create/", nil, cookies[0])
	if w.Code != http.StatusOK {
		t.Fatalf("create page with fresh session: %d", w.Code)
	}
}

func TestSignupErrors(t *testing.T) {
	srv, rec := newTestServer(t)
	newUser(t, srv, "anna")

	cases := map[string]url.Values{
		"username":  {"username": {"anna"}, "password1": {"x"}, "password2": {"x"}},
		"password2": {"username": {"lena"}, "password1": {"x"}, "password2": {"y"}},
		"password1": {"username": {"lena"}},
	}
	for field, form := range cases {
		w := do(t, srv, http.MethodPost, "/auth/signup/", form, nil)
		if w.Code != http.StatusOK || rec.name != "signup" {
			t.Fatalf("%s: expected signup re-render, got %d %s", field, w.Code, rec.name)
		}
		errs, _ := rec.data["Errors"].(forms.Errors)
		if len(errs[field]) == 0 {
			t.Fatalf("%s: expected error on field, got %v", field, errs)
		}
	}
	if n := countRows(t, srv, &models.User{}); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, rec := newTestServer(t)
	do(t, srv, http.MethodPost, "/auth/signup/",
		url.Values{"username": {"anna"}, "password1": {"secret"}, "password2": {"secret"}}, nil)

	w := do(t, srv, http.MethodPost, "/auth/login/", url.Values{"username": {"anna"}, "password": {"wrong"}}, nil)
	if w.Code != http.StatusOK || rec.name != "login" || rec.data["Error"] == "" {
		t.Fatalf("expected login re-render with error, got %d %s %v", w.Code, rec.name, rec.data["Error"])
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("no session for a bad password")
	}
}

func TestLogout(t *testing.T) {
	srv, rec := newTestServer(t)
	_, cookie := newUser(t, srv, "anna")

	w := do(t, srv, http.MethodPost, "/auth/logout/", nil, cookie)
	if w.Code != http.StatusOK || rec.name != "logged_out" {
		t.Fatalf("logout: %d %s", w.Code, rec.name)
	}
	w = do(t, srv, http.MethodGet, "/create/", nil, cookie)
	if w.Code != http.StatusFound {
		t.Fatalf("revoked session should not authenticate, got %d", w.Code)
	}
}

func TestExpiredSessionIsAnonymous(t *testing.T) {
	srv, _ := newTestServer(t)
	u, _ := models.CreateUser(srv.DB, "anna", "", "x")
	models.CreateSession(srv.DB, u.ID, "old", time.Now().Add(-time.Minute))

	w := do(t, srv, http.MethodGet, "/create/", nil, &http.Cookie{Name: srv.CookieName, Value: "old"})
	if w.Code != http.StatusFound {
		t.Fatalf("expired session should redirect to login, got %d", w.Code)
	}
}

func TestGuestPages(t *testing.T) {
	srv, _ := newTestServer(t)
	anna, _ := newUser(t, srv, "Anna")
	g := newGroup(t, srv, "test-slug")
	p := newPost(t, srv, anna, "Test text", g)
	postPath := postURL(p.ID)

	cases := map[string]int{
		"/":                     http.StatusOK,
		"/group/test-slug/":     http.StatusOK,
		"/profile/Anna/":        http.StatusOK,
		postPath:                http.StatusOK,
		"/unexisting_page/":     http.StatusNotFound,
		"/group/missing/":       http.StatusNotFound,
		"/profile/nobody/":      http.StatusNotFound,
		"/posts/999/":           http.StatusNotFound,
		"/posts/abc/":           http.StatusNotFound,
		"/create/":              http.StatusFound,
		postPath + "edit/":      http.StatusFound,
		postPath + "comment/":   http.StatusFound,
		"/follow/":              http.StatusFound,
		"/static/css/style.css": http.StatusOK,
	}
	for path, status := range cases {
		t.Run(path, func(t *testing.T) {
			if w := do(t, srv, http.MethodGet, path, nil, nil); w.Code != status {
				t.Fatalf("GET %s: got %d, want %d", path, w.Code, status)
			}
		})
	}
}

func TestLoginRedirectKeepsDestination(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/create/", nil, nil)
	if loc := w.Header().Get("Location"); loc != "/auth/login/?next=/create/" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestTemplatesUsed(t *testing.T) {
	srv, rec := newTestServer(t)
	anna, cookie := newUser(t, srv, "Anna")
	g := newGroup(t, srv, "test-slug")
	p := newPost(t, srv, anna, "Test text", g)

	cases := map[string]string{
		"/":                     "index",
		"/group/test-slug/":     "group_list",
		"/profile/Anna/":        "profile",
		postURL(p.ID):           "post_detail",
		"/create/":              "create_post",
		postURL(p.ID) + "edit/": "create_post",
		"/follow/":              "follow",
		"/unexisting_page/":     "404",
		"/auth/login/?next=/x/": "login",
		"/auth/signup/":         "signup",
	}
	for path, name := range cases {
		w := do(t, srv, http.MethodGet, path, nil, cookie)
		if rec.name != name {
			t.Fatalf("GET %s rendered %q, want %q (status %d)", path, rec.name, name, w.Code)
		}
		if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			t.Fatalf("GET %s: content type %q", path, w.Header().Get("Content-Type"))
		}
	}
}

func TestAccessLog(t *testing.T) {
	srv, _ := newTestServer(t)
	var buf bytes.Buffer
	h := srv.Handler(&buf)
	if w := do(t, h, http.MethodGet, "/", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("index via handler: %d", w.Code)
	}
	if !strings.Contains(buf.String(), "GET / HTTP/1.1") {
		t.Fatalf("access log missing request line: %q", buf.String())
	}
}

var csrfInput = regexp.MustCompile(`name="` + CSRFField + `" value="([^"]+)"`)

func TestForgedPostsAreRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler(io.Discard)
	newUser(t, srv, "anna")
	_, bobCookie := newUser(t, srv, "bob")

	login := url.Values{"username": {"anna"}, "password": {"wrong"}}
	if w := do(t, h, http.MethodPost, "/auth/login/", login, nil); w.Code != http.StatusForbidden {
		t.Fatalf("login without token: %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/profile/anna/follow/", url.Values{}, bobCookie); w.Code != http.StatusForbidden {
		t.Fatalf("follow without token: %d", w.Code)
	}
	if n := countRows(t, srv, &models.Follow{}); n != 0 {
		t.Fatalf("forged follow stored %d records", n)
	}

	page := do(t, h, http.MethodGet, "/auth/login/", nil, nil)
	m := csrfInput.FindStringSubmatch(page.Body.String())
	if m == nil {
		t.Fatalf("login form has no token field")
	}
	login.Set(CSRFField, html.UnescapeString(m[1]))
	req := httptest.NewRequest(http.MethodPost, "/auth/login/", strings.NewReader(login.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range page.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "correct username and password") {
		t.Fatalf("login with token should reach the handler, got %d", w.Code)
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"/create/":          "/create/",
		"":                  "/",
		"//evil.example":    "/",
		"/\\evil.example":   "/",
		"https://evil.test": "/",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoginURL(t *testing.T) {
	if got := loginURL("/posts/1/edit/?a=b"); got != "/auth/login/?next=/posts/1/edit/%3Fa%3Db" {
		t.Fatalf("loginURL = %q", got)
	}
}
