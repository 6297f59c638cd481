package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"copilot-chat/internal/session"
)

// Sessions keeps one chat session per browser, keyed by a cookie value.
// Sessions not seen for a while are dropped by Sweep.
type Sessions struct {
	newSession func() *session.Session
	now        func() time.Time

	mu   sync.Mutex
	byID map[string]*tracked
}

type tracked struct {
	sess     *session.Session
	lastSeen time.Time
}

func NewSessions(newSession func() *session.Session) *Sessions {
	return &Sessions{
		newSession: newSession,
		now:        time.Now,
		byID:       make(map[string]*tracked),
	}
}

// Get returns the session for id and marks it as seen.
func (s *Sessions) Get(id string) (*session.Session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	t.lastSeen = s.now()
	return t.sess, true
}

// Create starts a new, unconnected session and returns its id.
func (s *Sessions) Create() (string, *session.Session) {
	id := uuid.NewString()
	sess := s.newSession()
	s.mu.Lock()
	s.byID[id] = &tracked{sess: sess, lastSeen: s.now()}
	s.mu.Unlock()
	return id, sess
}

// Drop forgets a session, cancelling any turn it has in flight.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	t, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if ok {
		t.sess.Reset()
	}
}

// Sweep drops sessions idle for longer than idle and returns their ids.
// A session with a turn in flight is never idle.
func (s *Sessions) Sweep(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var dropped []*tracked
	var ids []string
	for id, t := range s.byID {
		if t.lastSeen.After(cutoff) || t.sess.State() == session.StateTurnInProgress {
			continue
		}
		delete(s.byID, id)
		dropped = append(dropped, t)
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, t := range dropped {
		t.sess.Reset()
	}
	return ids
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
