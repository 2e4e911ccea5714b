// Package sessions adapts gorilla/sessions cookie sessions to account sessions.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/thibaut-decherit/usermanager/internal/account"
)

const CookieName = "um-session"

type Store struct {
	store  sessions.Store
	logger *slog.Logger
}

func NewStore(store sessions.Store, logger *slog.Logger) *Store {
	return &Store{
		store:  store,
		logger: logger,
	}
}

// NewCookieStore creates a gorilla cookie store. hashKey authenticates the cookie,
// blockKey encrypts it and may be nil.
func NewCookieStore(hashKey, blockKey []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Get returns the session of r, cookies are written to w. When the cookie of r
// can't be decoded, a fresh session is returned along with the error.
func (s *Store) Get(w http.ResponseWriter, r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if base == nil {
		return nil, err
	}

	return &Session{
		base:  base,
		store: s.store,
		w:     w,
		r:     r,
	}, err
}

// Middleware loads the session and injects it in the request context.
// The session is saved after next when it was changed.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &saveWriter{ResponseWriter: w, logger: s.logger, r: r}

		sess, err := s.Get(sw, r)
		if err != nil {
			s.logger.WarnContext(r.Context(), "invalid session cookie", "error", err)
		}

		if sess == nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		sw.sess = sess
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), sess)))
		sw.save()
	})
}

// LogoutHandler ends the session of the request for reason and redirects to target.
func LogoutHandler(c *account.LogoutCoordinator, reason account.LogoutReason, target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := FromContext(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if err := c.OnLogout(r.Context(), reason, sess); err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

type ctxKey string

const sessionCtxKey ctxKey = "_session"

func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func FromContext(ctx context.Context) (*Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}

// saveWriter saves a changed session before the header is written.
type saveWriter struct {
	http.ResponseWriter
	sess   *Session
	logger *slog.Logger
	r      *http.Request
	saved  bool
}

func (w *saveWriter) WriteHeader(status int) {
	w.save()
	w.ResponseWriter.WriteHeader(status)
}

func (w *saveWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

func (w *saveWriter) save() {
	if w.saved || w.sess == nil {
		return
	}
	w.saved = true

	if !w.sess.NeedsSave() {
		return
	}

	if err := w.sess.Save(); err != nil {
		w.logger.ErrorContext(w.r.Context(), "failed to save session", "error", err)
	}
}
