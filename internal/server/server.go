package server

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/gorilla/handlers"
	"gorm.io/gorm"

	"yatube/internal/config"
	"yatube/internal/media"
	"yatube/internal/paginate"
)

// CSRFField is the form field carrying the anti-forgery token.
const CSRFField = "csrf_token"

var ErrTemplateNotFound = errors.New("template not found")

// Renderer turns a template name and its context into a response body.
type Renderer interface {
	Render(w io.Writer, name string, data map[string]any) error
}

type Server struct {
	DB *gorm.DB

	cfg        config.Config
	renderer   Renderer
	paginator  *paginate.Paginator
	media      *media.Store
	cache      *pageCache
	handler    http.Handler
	csrf       func(http.Handler) http.Handler
	CookieName string
}

func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	renderer, err := NewTemplateRenderer(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		DB:         db,
		cfg:        cfg,
		renderer:   renderer,
		paginator:  paginate.New(cfg.PageSize),
		media:      media.New(cfg.MediaDir),
		cache:      newPageCache(cfg.CacheTTL),
		CookieName: "session_id",
	}
	key, err := csrfKey(cfg.CSRFKey)
	if err != nil {
		return nil, err
	}
	s.csrf = csrf.Protect(key,
		csrf.FieldName(CSRFField),
		csrf.CookieName("csrf"),
		csrf.Path("/"),
		csrf.Secure(cfg.SecureCookies),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)),
	)
	s.handler = s.routes()
	return s, nil
}

func csrfKey(encoded string) ([]byte, error) {
	if encoded != "" {
		return hex.DecodeString(encoded)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	slog.Warn("server: CSRF_KEY not set, form tokens will not survive a restart")
	return key, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.cache.wrap(s.cacheKey, s.handleIndex))
	mux.HandleFunc("GET /group/{slug}/{$}", s.handleGroup)
	mux.HandleFunc("GET /profile/{username}/{$}", s.handleProfile)
	mux.HandleFunc("/profile/{username}/follow/{$}", s.requireAuth(s.handleFollow))
	mux.HandleFunc("/profile/{username}/unfollow/{$}", s.requireAuth(s.handleUnfollow))
	mux.HandleFunc("GET /posts/{id}/{$}", s.handlePostDetail)
	mux.HandleFunc("/posts/{id}/edit/{$}", s.requireAuth(s.handlePostEdit))
	mux.HandleFunc("/posts/{id}/comment/{$}", s.requireAuth(s.handleComment))
	mux.HandleFunc("/create/{$}", s.requireAuth(s.handlePostCreate))
	mux.HandleFunc("GET /follow/{$}", s.requireAuth(s.handleFeed))
	mux.HandleFunc("/auth/signup/{$}", s.handleSignup)
	mux.HandleFunc("/auth/login/{$}", s.handleLogin)
	mux.HandleFunc("POST /auth/logout/{$}", s.handleLogout)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	mux.Handle("GET /media/", http.StripPrefix("/media/", s.media.Handler()))
	mux.HandleFunc("/", s.notFound)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler wraps the server with forgery protection for unsafe methods, panic
// recovery and a combined-format access log.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))
	return handlers.CombinedLoggingHandler(accessLog, recovery(s.protect(s)))
}

// protect applies the csrf middleware. Without secure cookies the site is
// served over plain HTTP, where csrf would otherwise demand an HTTPS referer.
func (s *Server) protect(next http.Handler) http.Handler {
	guarded := s.csrf(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.SecureCookies {
			r = csrf.PlaintextHTTPRequest(r)
		}
		guarded.ServeHTTP(w, r)
	})
}

func (s *Server) csrfFailure(w http.ResponseWriter, r *http.Request) {
	slog.Info("server: Rejected forged request", "method", r.Method, "path", r.URL.Path, "reason", csrf.FailureReason(r))
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	slog.Error("server: Recovered from panic", "panic", fmt.Sprint(v...))
}

// db scopes the store to the request so a dropped client cancels its queries.
func (s *Server) db(r *http.Request) *gorm.DB {
	return s.DB.WithContext(r.Context())
}

// render executes the page into a buffer first so a template failure can
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["User"]; !ok {
		data["User"] = s.currentUser(r)
	}
	data["CSRFField"] = csrf.TemplateField(r)
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, name, data); err != nil {
		s.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "404", map[string]any{"Path": r.URL.Path})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("server: Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// TemplateRenderer holds one template set per page: the shared layout, every
// "_*.html" partial and the page itself.
type TemplateRenderer struct {
	tmpl map[string]*template.Template
}

func NewTemplateRenderer(templateDir string) (*TemplateRenderer, error) {
	templates := map[string]*template.Template{}
	layout := filepath.Join(templateDir, "layout.html")
	partials, err := filepath.Glob(filepath.Join(templateDir, "_*.html"))
	if err != nil {
		return nil, err
	}
	pages, err := filepath.Glob(filepath.Join(templateDir, "*.html"))
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		base := filepath.Base(page)
		if base == "layout.html" || strings.HasPrefix(base, "_") {
			continue
		}
		files := append([]string{layout}, partials...)
		t, err := template.ParseFiles(append(files, page)...)
		if err != nil {
			return nil, err
		}
		templates[strings.TrimSuffix(base, ".html")] = t
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: no pages in %s", ErrTemplateNotFound, templateDir)
	}
	return &TemplateRenderer{tmpl: templates}, nil
}

func (tr *TemplateRenderer) Render(w io.Writer, name string, data map[string]any) error {
	t, ok := tr.tmpl[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
