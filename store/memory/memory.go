// Package memory provides a mutation-guarded in-memory gate.Store.
package memory

import (
	"sync"

	"github.com/linkgate/linkgate/gate"
)

// Store is a thread-safe in-memory session store. Sessions are lost on
// process restart, which the TTL model accepts. Every read-modify-write
// runs under the store mutex, so concurrent allow-list admissions and
// check-count increments cannot lose updates.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]gate.Session
	byKey    map[string]string // key -> token
}

var _ gate.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]gate.Session),
		byKey:    make(map[string]string),
	}
}

func (s *Store) Create(sess gate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.Token]; exists {
		return gate.ErrTokenExists
	}
	if sess.Key != "" {
		if _, indexed := s.byKey[sess.Key]; indexed {
			return gate.ErrKeyTaken
		}
		s.byKey[sess.Key] = sess.Token
	}
	s.sessions[sess.Token] = sess.Clone()
	return nil
}

func (s *Store) Get(token string) (gate.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return gate.Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

func (s *Store) FindByKey(key string) (gate.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.byKey[key]
	if !ok {
		return gate.Session{}, false, nil
	}
	sess, ok := s.sessions[token]
	if !ok {
		return gate.Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

func (s *Store) Update(token string, fn func(*gate.Session) error) (gate.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[token]
	if !ok {
		return gate.Session{}, gate.ErrNotFound
	}

	work := cur.Clone()
	if err := fn(&work); err != nil {
		return gate.Session{}, err
	}
	work.Token = token

	if work.Key != cur.Key && work.Key != "" {
		if owner, indexed := s.byKey[work.Key]; indexed && owner != token {
			return gate.Session{}, gate.ErrKeyTaken
		}
		s.byKey[work.Key] = token
	}
	s.sessions[token] = work
	return work.Clone(), nil
}

func (s *Store) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if sess.Key != "" {
		delete(s.byKey, sess.Key)
	}
	delete(s.sessions, token)
	return nil
}

func (s *Store) ForEach(fn func(gate.Session) bool) error {
	s.mu.RLock()
	snapshot := make([]gate.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess.Clone())
	}
	s.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			break
		}
	}
	return nil
}
