package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"yatube/internal/forms"
	"yatube/internal/models"
)

const loginPath = "/auth/login/"

// requireAuth sends anonymous callers to the login page, remembering where
// they were going.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.currentUser(r)
		if user == nil {
			http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next(w, r, user)
	}
}

func loginURL(next string) string {
	return loginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}

// currentUser resolves the session cookie to its user; nil means anonymous.
func (s *Server) currentUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	db := s.db(r)
	sess, err := models.GetSession(db, cookie.Value)
	if err != nil || !sess.Live(time.Now()) {
		return nil
	}
	u, err := models.GetUser(db, sess.UserID)
	if err != nil {
		return nil
	}
	return u
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	sid := uuid.NewString()
	expires := time.Now().Add(s.cfg.SessionTTL)
	if err := models.CreateSession(s.db(r), user.ID, sid, expires); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func validUsername(name string) bool {
	if name == "" || len(name) > 150 {
		return false
	}
	for _, c := range name {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && !strings.ContainsRune("@.+-_", c) {
			return false
		}
	}
	return true
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "signup", map[string]any{
			"Errors":   forms.Errors{},
			"Username": "",
			"Email":    "",
		})

	case http.MethodPost:
		username := strings.TrimSpace(r.FormValue("username"))
		email := strings.TrimSpace(r.FormValue("email"))
		password := r.FormValue("password1")
		errs := forms.Errors{}
		if username == "" {
			errs.Add("username", forms.MsgRequired)
		} else if !validUsername(username) {
			errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
		}
		if password == "" {
			errs.Add("password1", forms.MsgRequired)
		} else if password != r.FormValue("password2") {
			errs.Add("password2", "The two password fields didn't match.")
		}

		var user *models.User
		if errs.Valid() {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				s.serverError(w, r, err)
				return
			}
			user, err = models.CreateUser(s.db(r), username, email, string(hash))
			if errors.Is(err, models.ErrDuplicateUsername) {
				errs.Add("username", "A user with that username already exists.")
			} else if err != nil {
				s.serverError(w, r, err)
				return
			}
		}
		if !errs.Valid() {
			s.render(w, r, http.StatusOK, "signup", map[string]any{
				"Errors":   errs,
				"Username": username,
				"Email":    email,
			})
			return
		}

		if err := s.startSession(w, r, user); err != nil {
			s.serverError(w, r, err)
			return
		}
		slog.Info("server: User signed up", "username", user.Username)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "login", map[string]any{
			"Next":     r.URL.Query().Get("next"),
			"Username": "",
			"Error":    "",
		})

	case http.MethodPost:
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		next := r.FormValue("next")
		user, err := models.GetUserByUsername(s.db(r), username)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			s.serverError(w, r, err)
			return
		}
		if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			s.render(w, r, http.StatusOK, "login", map[string]any{
				"Next":     next,
				"Username": username,
				"Error":    "Please enter a correct username and password.",
			})
			return
		}
		if err := s.startSession(w, r, user); err != nil {
			s.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, safeNext(next), http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.CookieName)
	if err == nil {
		if err := models.RevokeSession(s.db(r), cookie.Value); err != nil {
			slog.Warn("server: Failed to revoke session", "error", err)
		}
		http.SetCookie(w, &http.Cookie{Name: s.CookieName, Path: "/", MaxAge: -1})
	}
	s.render(w, r, http.StatusOK, "logged_out", map[string]any{"User": (*models.User)(nil)})
}
