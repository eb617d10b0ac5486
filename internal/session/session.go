package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const CookieName = "rocket.sid"

var ErrNotFound = errors.New("session not found")

// Data is what is persisted server side for a browser session.
type Data struct {
	PilotID string   `json:"pilotId,omitempty"`
	Flashes []string `json:"flashes,omitempty"`
}

// Store persists session data by opaque ID.
type Store interface {
	Get(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, d Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Session is a loaded browser session.
type Session struct {
	ID    string
	Data  Data
	isNew bool
}

func (s *Session) IsNew() bool { return s.isNew }

func (s *Session) AddFlash(msg string) {
	s.Data.Flashes = append(s.Data.Flashes, msg)
}

// PopFlashes returns pending flashes and clears them. The session must be
// saved for the removal to stick.
func (s *Session) PopFlashes() []string {
	f := s.Data.Flashes
	s.Data.Flashes = nil
	return f
}

// Manager ties a Store to a signed, encrypted cookie carrying the session ID.
type Manager struct {
	store  Store
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

func NewManager(store Store, secret string, maxAge time.Duration, secure bool) *Manager {
	hashKey := deriveKey(secret, CookieName+" hash", 64)
	blockKey := deriveKey(secret, CookieName+" block", 32)
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))
	return &Manager{store: store, codec: codec, maxAge: maxAge, secure: secure}
}

// deriveKey expands the configured secret into an independent key per use.
func deriveKey(secret, info string, size int) []byte {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		panic(fmt.Sprintf("derive %s key: %v", info, err))
	}
	return key
}

// Load returns the request's session, or a fresh empty one when the cookie
// is missing, tampered with or points at an expired record.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return m.fresh(), nil
	}
	var id string
	if err := m.codec.Decode(CookieName, c.Value, &id); err != nil {
		return m.fresh(), nil
	}
	d, err := m.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return m.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Session{ID: id, Data: d}, nil
}

func (m *Manager) fresh() *Session {
	return &Session{ID: uuid.NewString(), isNew: true}
}

// Renew moves the session to a fresh ID and drops the old record, keeping
// its data. Call it whenever the authenticated pilot changes.
func (m *Manager) Renew(r *http.Request, s *Session) error {
	if !s.isNew {
		if err := m.store.Delete(r.Context(), s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("renew session: %w", err)
		}
	}
	s.ID = uuid.NewString()
	s.isNew = true
	return nil
}

// Save persists the session and refreshes the cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if err := m.store.Save(r.Context(), s.ID, s.Data, m.maxAge); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	encoded, err := m.codec.Encode(CookieName, s.ID)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.isNew = false
	return nil
}

// Destroy removes the session server side and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil || s.isNew {
		return nil
	}
	if err := m.store.Delete(r.Context(), s.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
