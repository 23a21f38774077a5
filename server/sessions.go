package server

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one remote debugging session: a private frame driven by its
// own worker, plus the output its PRINT instructions produced.
type Session struct {
	ID     string
	Entry  string
	worker *VMWorker

	// out is written by the interpreter and drained by handlers, both on
	// the worker goroutine.
	out *bytes.Buffer

	created  time.Time
	lastUsed time.Time
}

// drainOutput returns and clears the captured output. Must be called on
// the session's worker goroutine.
func (s *Session) drainOutput() []byte {
	if s.out.Len() == 0 {
		return nil
	}
	data := bytes.Clone(s.out.Bytes())
	s.out.Reset()
	return data
}

// SessionStore manages debug sessions.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create registers a session for a running worker and returns it.
func (s *SessionStore) Create(entry string, worker *VMWorker, out *bytes.Buffer) *Session {
	now := time.Now()
	session := &Session{
		ID:       uuid.NewString(),
		Entry:    entry,
		worker:   worker,
		out:      out,
		created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if ok {
		session.lastUsed = time.Now()
	}
	return session, ok
}

// Destroy removes a session and stops its worker. Reports whether the
// session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
	}
	return ok
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	cutoff := time.Now().Add(-ttl)
	var stale []*Session
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			stale = append(stale, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range stale {
		session.worker.Stop()
		log.Infof("closed idle debug session %s", session.ID)
	}
	return len(stale)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// CloseAll stops every session.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.worker.Stop()
	}
}
