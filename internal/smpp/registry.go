package smpp

import (
	"log/slog"
	"sync"
	"time"
)

// SessionSnapshot is a point-in-time copy of a session's metadata, safe to
// hand to the admin API and CLI without exposing live state.
type SessionSnapshot struct {
	ID           string    `json:"id"`
	SystemID     string    `json:"system_id"`
	Role         string    `json:"bind_type"`
	RemoteAddr   string    `json:"addr"`
	AddressRange string    `json:"address_range,omitempty"`
	BoundAt      time.Time `json:"bound_at"`
}

// snapshot copies the session's immutable metadata.
func (s *Session) snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:           s.ID,
		SystemID:     s.SystemID,
		Role:         s.Role.String(),
		RemoteAddr:   s.RemoteAddr,
		AddressRange: s.AddressRange,
		BoundAt:      s.BoundAt,
	}
}

// Registry tracks all bound sessions. All methods are safe for concurrent
// use; reads take the shared lock so the lifecycle engine and the admin
// API never contend with each other.
type Registry struct {
	logger  *slog.Logger
	metrics MetricsReporter

	mu       sync.RWMutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryMetrics attaches a metrics reporter maintaining the active
// session gauge.
func WithRegistryMetrics(m MetricsReporter) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:   logger.With(slog.String("component", "registry")),
		metrics:  noopMetrics{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert adds a bound session.
func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SessionBound(s.Role.String())
	r.logger.Info("session bound",
		slog.String("session_id", s.ID),
		slog.String("system_id", s.SystemID),
		slog.String("role", s.Role.String()),
		slog.String("remote_addr", s.RemoteAddr),
		slog.Int("active", n))
}

// Remove drops the session with the given ID. Removing an unknown ID is a
// no-op; unbind and connection teardown may race to remove.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.SessionUnbound(s.Role.String())
	r.logger.Info("session removed",
		slog.String("session_id", id),
		slog.String("system_id", s.SystemID),
		slog.Int("active", n))
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of bound sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns metadata copies of all bound sessions in unspecified
// order.
func (r *Registry) Snapshot() []SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// FindSubscriber picks a receive-capable session whose address_range
// matches destAddr, in unspecified order. There is no failover to
// non-matching sessions.
func (r *Registry) FindSubscriber(destAddr string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.Role.CanReceive() && s.Matches(destAddr) {
			return s, true
		}
	}
	return nil, false
}
