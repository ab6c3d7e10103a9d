package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or ended session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Reasons passed to Observer.SessionEnded.
const (
	EndReasonClosed = "closed"
	EndReasonIdle   = "idle"
)

// Observer receives session lifecycle events. *metrics.Metrics satisfies it.
type Observer interface {
	SessionStarted()
	SessionEnded(reason string)
	ExchangeCompleted(kind string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) SessionStarted()                         {}
func (nopObserver) SessionEnded(string)                     {}
func (nopObserver) ExchangeCompleted(string, time.Duration) {}

// Options configures sessions created by a Manager.
type Options struct {
	// IdleTimeout after which Sweep ends a session. Zero disables sweeping.
	IdleTimeout time.Duration

	// MaxImageDimension caps the longest side of pending images.
	MaxImageDimension int

	// MaxImagePixels rejects uploads declaring more pixels. Zero uses
	// imaging.DefaultMaxPixels.
	MaxImagePixels int

	// Observer receives lifecycle events. Nil discards them.
	Observer Observer

	now func() time.Time
}

func (o Options) observer() Observer {
	if o.Observer == nil {
		return nopObserver{}
	}
	return o.Observer
}

// Manager tracks live sessions by ID.
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func newID() string {
	return uuid.NewString()
}

// Create starts a new session with an empty transcript.
func (m *Manager) Create() *Session {
	s := newSession(newID(), m.opts, m.logger)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.opts.observer().SessionStarted()
	m.logger.Info("session created", zap.String("session_id", s.ID))
	return s
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End removes the session. Its transcript is dropped with it.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	m.opts.observer().SessionEnded(EndReasonClosed)
	m.logger.Info("session ended",
		zap.String("session_id", id),
		zap.Int("turns", s.transcript.Len()),
	)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends every session idle for longer than idle and returns how many
// were removed.
func (m *Manager) Sweep(idle time.Duration) int {
	now := time.Now
	if m.opts.now != nil {
		now = m.opts.now
	}
	cutoff := now().Add(-idle)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.opts.observer().SessionEnded(EndReasonIdle)
		m.logger.Info("idle session reaped", zap.String("session_id", id))
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done. It returns
// immediately when IdleTimeout is zero.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.opts.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.opts.IdleTimeout); n > 0 {
				m.logger.Debug("sweep complete", zap.Int("reaped", n), zap.Int("active", m.Len()))
			}
		}
	}
}
