package kv

import (
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
)

// Session is a Backend over a gorilla session: per-browser storage carried
// in the session cookie. Values set during a request are buffered in the
// session and written out by Save, which must run before the response body.
type Session struct {
	mu    sync.Mutex
	sess  *sessions.Session
	dirty bool
}

// NewSession wraps sess.
func NewSession(sess *sessions.Session) *Session {
	return &Session{sess: sess}
}

// Get returns the string stored under key in the session.
func (s *Session) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sess.Values[key].(string)
	return v, ok, nil
}

// Set buffers value under key in the session.
func (s *Session) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sess.Values[key].(string); ok && cur == value {
		return nil
	}
	s.sess.Values[key] = value
	s.dirty = true
	return nil
}

// Save writes the session cookie if any value changed since the last Save.
func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.sess.Save(r, w); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
