// Package formsession hosts formflow engines on the server, one per session
// id, and evicts sessions that sit idle past their TTL.
package formsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"udyam/internal/formflow"
	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/sentinel"
	"udyam/pkg/requestcontext"
)

// ErrTooManySessions is returned by Create when the session cap is reached.
var ErrTooManySessions = errors.New("too many form sessions")

// EngineFactory builds a fresh engine for a new session.
type EngineFactory func() *formflow.Engine

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type session struct {
	engine   *formflow.Engine
	lastUsed time.Time
}

// Manager owns the live sessions.
type Manager struct {
	factory     EngineFactory
	ttl         time.Duration
	maxSessions int
	logger      *slog.Logger
	publisher   AuditPublisher

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(m *Manager) {
		m.publisher = publisher
	}
}

// WithMaxSessions caps concurrent sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

func NewManager(factory EngineFactory, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		ttl:      ttl,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: make(map[uuid.UUID]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session with a new engine. At the cap, idle sessions are
// evicted first so only live ones count against it.
func (m *Manager) Create(ctx context.Context) (uuid.UUID, *formflow.Engine, error) {
	now := requestcontext.Now(ctx)
	m.mu.Lock()
	var evicted []uuid.UUID
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		evicted = m.evictLocked(now)
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		m.emitExpired(ctx, evicted)
		return uuid.Nil, nil, ErrTooManySessions
	}
	id := uuid.New()
	engine := m.factory()
	m.sessions[id] = &session{engine: engine, lastUsed: now}
	m.mu.Unlock()

	m.emitExpired(ctx, evicted)
	m.emit(ctx, audit.EventFormSessionStarted, id)
	return id, engine, nil
}

// Get returns the session's engine and marks it used. Sessions idle past the
// TTL are treated as gone even before the sweeper removes them.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*formflow.Engine, error) {
	now := requestcontext.Now(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || m.expired(s, now) {
		return nil, sentinel.ErrNotFound
	}
	s.lastUsed = now
	return s.engine, nil
}

// Delete ends a session. Deleting an unknown id is not an error.
func (m *Manager) Delete(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.engine.Reset()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	expired := m.evictLocked(requestcontext.Now(ctx))
	m.mu.Unlock()

	m.emitExpired(ctx, expired)
	return len(expired)
}

// evictLocked must be called while holding m.mu.
func (m *Manager) evictLocked(now time.Time) []uuid.UUID {
	var expired []uuid.UUID
	for id, s := range m.sessions {
		if m.expired(s, now) {
			expired = append(expired, id)
			delete(m.sessions, id)
			s.engine.Reset()
		}
	}
	return expired
}

func (m *Manager) emitExpired(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		m.emit(ctx, audit.EventFormSessionExpired, id)
	}
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.logger.InfoContext(ctx, "expired form sessions", "count", n)
			}
		}
	}
}

func (m *Manager) expired(s *session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.lastUsed) >= m.ttl
}

func (m *Manager) emit(ctx context.Context, action audit.AuditEvent, id uuid.UUID) {
	m.logger.InfoContext(ctx, string(action),
		"request_id", requestcontext.RequestID(ctx),
		"session_id", id,
		"log_type", "audit",
	)
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Emit(ctx, audit.Event{
		Action:    string(action),
		Subject:   id.String(),
		Decision:  "recorded",
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}
