package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/rocket-deliveries/internal/observability"
)

var ErrNoSession = errors.New("no ws session")

const writeWait = 5 * time.Second

// Conn is the part of *websocket.Conn the registry writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Notifier pushes a JSON message to every open dashboard of a pilot.
type Notifier interface {
	Notify(pilotID string, msg any) error
}

// WSSession is one open dashboard connection.
type WSSession struct {
	conn Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// WSRegistry holds dashboard sessions keyed by pilot. A pilot may have
// several tabs open.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{}), logger: logger}
}

func (r *WSRegistry) Add(pilotID string, conn Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[pilotID] == nil {
		r.sessions[pilotID] = make(map[*WSSession]struct{})
	}
	r.sessions[pilotID][s] = struct{}{}
	observability.DashboardsOnline.Inc()
	return s
}

func (r *WSRegistry) Remove(pilotID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[pilotID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	observability.DashboardsOnline.Dec()
	if len(set) == 0 {
		delete(r.sessions, pilotID)
	}
}

func (r *WSRegistry) Count(pilotID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[pilotID])
}

// Notify sends msg to all of the pilot's sessions. Sessions that fail to
// write are closed and dropped.
func (r *WSRegistry) Notify(pilotID string, msg any) error {
	r.mu.RLock()
	targets := make([]*WSSession, 0, len(r.sessions[pilotID]))
	for s := range r.sessions[pilotID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		return ErrNoSession
	}
	var errs []error
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			r.logger.Warn("ws send failed", "pilot_id", pilotID, "err", err)
			_ = s.conn.Close()
			r.Remove(pilotID, s)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

// VerifiedMessage is pushed when a pilot's account becomes verified.
type VerifiedMessage struct {
	StripeVerified bool `json:"stripeVerified"`
}
