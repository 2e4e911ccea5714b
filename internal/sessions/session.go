package sessions

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const userIDKey = "userID"

// Session is a cookie session. It implements account.Session.
type Session struct {
	base      *sessions.Session
	store     sessions.Store
	w         http.ResponseWriter
	r         *http.Request
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

func (s *Session) UserID() (uuid.UUID, bool) {
	raw, ok := s.base.Values[userIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

func (s *Session) SetUserID(userID uuid.UUID) {
	s.needsSave = true
	s.base.Values[userIDKey] = userID.String()
}

func (s *Session) AddFlash(flash any, vars ...string) {
	s.needsSave = true
	s.base.AddFlash(flash, vars...)
}

func (s *Session) Flashes(vars ...string) []any {
	flashes := s.base.Flashes(vars...)
	if len(flashes) > 0 {
		s.needsSave = true
	}
	return flashes
}

// Invalidate expires the cookie and replaces the session by a fresh,
// anonymous one. The fresh session is saved on the next Save.
func (s *Session) Invalidate() error {
	opts := sessions.Options{}
	if s.base.Options != nil {
		opts = *s.base.Options
	}

	expired := opts
	expired.MaxAge = -1
	s.base.Options = &expired

	if err := s.store.Save(s.r, s.w, s.base); err != nil {
		return err
	}

	fresh := sessions.NewSession(s.store, CookieName)
	fresh.Options = &opts
	s.base = fresh
	s.needsSave = true

	return nil
}

func (s *Session) Save() error {
	if err := s.store.Save(s.r, s.w, s.base); err != nil {
		return err
	}

	s.needsSave = false
	return nil
}
