package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/hanko-shop/internal/cart"
)

const (
	sessionCookieName = "HANKO_SHOP_SESSION"
	sessionLifetime   = 30 * 24 * time.Hour
)

// ErrSessionConfig indicates invalid session key material.
var ErrSessionConfig = errors.New("session: invalid config")

// SessionData is persisted in the signed session cookie.
type SessionData struct {
	ID        string    `json:"id"`
	UserID    string    `json:"uid,omitempty"`
	Email     string    `json:"email,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	CSRFToken string    `json:"csrf,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	dirty bool
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

// RegenerateID assigns a new session ID and CSRF token to prevent fixation after auth.
func (s *SessionData) RegenerateID() {
	s.ID = ulid.Make().String()
	s.CSRFToken = newCSRFToken()
	s.MarkDirty()
}

// SignIn binds the session to a user, regenerating its id on first sign in.
func (s *SessionData) SignIn(uid, email string) {
	if s.UserID == uid {
		return
	}
	wasAuthed := s.UserID != ""
	s.UserID = uid
	s.Email = email
	if !wasAuthed {
		s.RegenerateID()
		return
	}
	s.MarkDirty()
}

// Sessions loads and persists SessionData through a securecookie codec.
type Sessions struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewSessions builds the session codec. An empty hash key yields a
// process-ephemeral key, which only suits local development.
func NewSessions(hashKey, blockKey string, secure bool, logger *zap.Logger) (*Sessions, error) {
	hk := []byte(hashKey)
	if len(hk) == 0 {
		hk = securecookie.GenerateRandomKey(32)
		if hk == nil {
			return nil, fmt.Errorf("%w: unable to generate hash key", ErrSessionConfig)
		}
		if logger != nil {
			logger.Warn("session: using ephemeral signing key; set HANKO_SHOP_SESSION_HASH_KEY outside development")
		}
	}
	var bk []byte
	if blockKey != "" {
		bk = []byte(blockKey)
	}
	codec := securecookie.New(hk, bk)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(sessionLifetime.Seconds()))
	return &Sessions{codec: codec, secure: secure}, nil
}

// Secure reports whether cookies are flagged Secure.
func (m *Sessions) Secure() bool { return m.secure }

// Middleware loads or initializes a session and stores it in request context.
// The cookie is written just before the first byte of the response when the
// session changed.
func (m *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sd, fromCookie := m.read(r)
		if sd.ID == "" {
			now := time.Now().UTC()
			sd.ID = ulid.Make().String()
			sd.CreatedAt = now
			sd.UpdatedAt = now
			sd.CSRFToken = newCSRFToken()
			sd.dirty = true
		}
		sw := &sessionWriter{ResponseWriter: w}
		sw.beforeWrite = func() {
			if sd.dirty || !fromCookie {
				m.write(w, sd)
			}
		}
		next.ServeHTTP(sw, r.WithContext(contextWithSession(r.Context(), sd)))
		if !sw.wrote {
			sw.flushHeader()
		}
	})
}

func (m *Sessions) read(r *http.Request) (*SessionData, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := m.codec.Decode(sessionCookieName, c.Value, &sd); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

func (m *Sessions) write(w http.ResponseWriter, sd *SessionData) {
	encoded, err := m.codec.Encode(sessionCookieName, sd)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionLifetime),
	})
}

func contextWithSession(ctx context.Context, s *SessionData) context.Context {
	ctx = context.WithValue(ctx, ctxKeySession, s)
	if s.UserID != "" {
		ctx = WithUser(ctx, &cart.User{ID: s.UserID, Email: s.Email})
	}
	return ctx
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if sd, ok := r.Context().Value(ctxKeySession).(*SessionData); ok {
		return sd
	}
	return &SessionData{}
}

type sessionWriter struct {
	http.ResponseWriter
	beforeWrite func()
	wrote       bool
}

func (w *sessionWriter) flushHeader() {
	if w.wrote {
		return
	}
	w.wrote = true
	if w.beforeWrite != nil {
		w.beforeWrite()
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flushHeader()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushHeader()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.flushHeader()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
