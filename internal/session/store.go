// Package session owns per-client conversation state. It is the only
// mutable shared structure in the intake core.
package session

import (
	"sync"

	"github.com/sportmind/intake/internal/directory"
)

// HistoryLimit caps the number of raw user messages kept per session.
const HistoryLimit = 10

// Session holds the dialogue state for one client. It is created lazily and
// lives for the process lifetime. Fields must only be touched inside
// Store.With, which serializes turns for the same client.
type Session struct {
	History                  []string
	ProblemCollected         bool
	AgeCollected             bool
	AgeGroup                 directory.AgeGroup
	LastProblemMessage       string
	TurnsSinceRecommendation int
	LastAskedGeneral         bool
}

// AppendHistory records a raw user message, evicting the oldest entry once
// the cap is exceeded.
func (s *Session) AppendHistory(message string) {
	s.History = append(s.History, message)
	if len(s.History) > HistoryLimit {
		s.History = s.History[len(s.History)-HistoryLimit:]
	}
}

// SetAgeGroup marks the age slot as collected. The group is monotonic: it is
// never reset to unknown once a real group has been extracted.
func (s *Session) SetAgeGroup(group directory.AgeGroup) {
	if group == directory.AgeGroupUnknown {
		return
	}
	s.AgeGroup = group
	s.AgeCollected = true
}

// SetProblem marks the problem slot as collected and remembers the message
// that carried the problem statement for later context rehydration.
func (s *Session) SetProblem(message string) {
	s.ProblemCollected = true
	s.LastProblemMessage = message
}

// Ready reports whether both slots needed for a recommendation are present.
func (s *Session) Ready() bool {
	return s.ProblemCollected && s.AgeCollected
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store is a registry of sessions keyed by client identifier. The registry
// map is guarded by its own lock; each session carries a per-key lock so
// turns for the same client are serialized while different clients proceed
// independently.
type Store struct {
	mu             sync.RWMutex
	sessions       map[string]*entry
	initialCounter int
}

// NewStore creates an empty session registry. New sessions start with
// turns_since_recommendation already at initialCounter so a complete first
// message can be recommended on immediately.
func NewStore(initialCounter int) *Store {
	return &Store{
		sessions:       make(map[string]*entry),
		initialCounter: initialCounter,
	}
}

// Len reports how many sessions exist.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.sessions)
}

func (st *Store) getOrCreate(clientID string) *entry {
	st.mu.RLock()
	e, ok := st.sessions[clientID]
	st.mu.RUnlock()
	if ok {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok := st.sessions[clientID]; ok {
		return e
	}
	e = &entry{session: &Session{
		AgeGroup:                 directory.AgeGroupUnknown,
		TurnsSinceRecommendation: st.initialCounter,
	}}
	st.sessions[clientID] = e

	return e
}

// With runs fn with exclusive access to the client's session, creating the
// session on first use. The per-session lock is held for the whole call, so
// a slow turn for one client never blocks other clients.
func (st *Store) With(clientID string, fn func(s *Session)) {
	e := st.getOrCreate(clientID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
}

// Snapshot returns a copy of the client's current session state, creating
// the session if needed. Intended for tests and diagnostics.
func (st *Store) Snapshot(clientID string) Session {
	var copied Session
	st.With(clientID, func(s *Session) {
		copied = *s
		copied.History = append([]string(nil), s.History...)
	})

	return copied
}
