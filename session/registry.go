// Package session manages the ephemeral per-client state of the backend: the
// language model handle, the bound fetcher, and the attached websocket. Every
// session expires a fixed TTL after creation and expiry cascades over all
// attached resources.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/internal/llm"
	"github.com/gitrecap/backend/internal/logging"
	"github.com/gitrecap/backend/model"
	"github.com/gitrecap/backend/providers"
)

var logger = logging.InitLogger()

// EngineFactory builds a completion engine from per-session configuration.
type EngineFactory func(config.LLMConfig) llm.Engine

// Registry owns every live session. All access is serialized on one mutex;
// session counts are small and operations on them are cheap.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	factory  EngineFactory
}

// Session is one client's ephemeral state.
type Session struct {
	ID        string
	CreatedAt time.Time

	engine  llm.Engine
	fetcher providers.Fetcher
	socket  io.Closer
	timer   *time.Timer

	opMu    sync.Mutex
	refs    int
	expired bool
}

// Engine returns the session's completion engine.
func (s *Session) Engine() llm.Engine { return s.engine }

// Fetcher returns the bound fetcher, or nil when none is bound yet.
func (s *Session) Fetcher() providers.Fetcher { return s.fetcher }

// Lock serializes fetcher use across concurrent requests on the same session.
// The fetcher mutates its window and caches in place, so two requests must
// never drive it at once; requests on different sessions are unaffected.
func (s *Session) Lock() { s.opMu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Session) Unlock() { s.opMu.Unlock() }

// NewRegistry builds a registry whose sessions live for ttl after creation.
func NewRegistry(ttl time.Duration, factory EngineFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		factory:  factory,
	}
}

// Create registers a new session and schedules its expiry exactly ttl from
// now. The TTL does not slide on use.
func (r *Registry) Create(cfg config.LLMConfig) (string, error) {
	id := uuid.New().String()
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		engine:    r.factory(cfg),
	}

	// The timer is armed only after the session is reachable in the map so a
	// tiny TTL cannot fire against an unregistered id and leave the session
	// behind forever.
	r.mu.Lock()
	r.sessions[id] = s
	s.timer = time.AfterFunc(r.ttl, func() {
		r.Expire(id)
	})
	r.mu.Unlock()

	logger.Sugar().Infof("session %s created, expires in %s", id, r.ttl)
	return id, nil
}

// BindFetcher attaches a fetcher to the session, closing any fetcher bound
// before it.
func (r *Registry) BindFetcher(id string, f providers.Fetcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	if s.fetcher != nil {
		closeQuietly("fetcher", s.fetcher)
	}
	s.fetcher = f
	return nil
}

// AttachSocket records the websocket owned by the session so expiry can close
// it.
func (r *Registry) AttachSocket(id string, c io.Closer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	s.socket = c
	return nil
}

// DetachSocket clears the recorded socket if it is still the one given. The
// caller closes its own connection on disconnect.
func (r *Registry) DetachSocket(id string, c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && s.socket == c {
		s.socket = nil
	}
}

// Acquire pins the session for the duration of one request and returns it
// with a release func. A pinned session can expire logically, but its fetcher
// is only physically cleaned up once the last holder releases.
func (r *Registry) Acquire(id string) (*Session, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil, model.ErrSessionNotFound
	}
	s.refs++

	released := false
	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if released {
			return
		}
		released = true
		s.refs--
		if s.expired && s.refs == 0 && s.fetcher != nil {
			closeQuietly("fetcher", s.fetcher)
			s.fetcher = nil
		}
	}
	return s, release, nil
}

// Expire removes the session and tears down its resources. It is idempotent
// and cascading: every teardown step runs even when an earlier one fails.
// Fetcher cleanup is deferred while requests still hold the session.
func (r *Registry) Expire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	s.expired = true
	s.timer.Stop()

	// The engine and socket handles stay set so an in-flight request that
	// already acquired the session never sees a nil collaborator; Close on
	// them unblocks whatever the request is doing.
	if s.engine != nil {
		closeQuietly("engine", s.engine)
	}
	if s.socket != nil {
		closeQuietly("socket", s.socket)
	}
	if s.refs == 0 && s.fetcher != nil {
		closeQuietly("fetcher", s.fetcher)
		s.fetcher = nil
	}
	logger.Sugar().Infof("session %s expired", id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func closeQuietly(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Sugar().Warnf("closing %s: %v", what, err)
	}
}
