// Package bolt provides a bbolt-backed gate.Store. Sessions survive
// process restarts for the remainder of their TTL.
package bolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/linkgate/linkgate/gate"
)

var (
	sessionsBucket = []byte("sessions")
	keysBucket     = []byte("keys") // key -> token index
)

// Store implements gate.Store backed by a bbolt database. bbolt gives
// one writer at a time, so every read-modify-write here is a single
// serialized transaction.
type Store struct {
	db *bbolt.DB
}

var _ gate.Store = (*Store)(nil)

// NewStore returns a Store over the given bbolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(keysBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a bbolt database at path and returns a Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(sess gate.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(sessionsBucket)
		if sessions.Get([]byte(sess.Token)) != nil {
			return gate.ErrTokenExists
		}
		if sess.Key != "" {
			keys := tx.Bucket(keysBucket)
			if keys.Get([]byte(sess.Key)) != nil {
				return gate.ErrKeyTaken
			}
			if err := keys.Put([]byte(sess.Key), []byte(sess.Token)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		return sessions.Put([]byte(sess.Token), data)
	})
}

func (s *Store) Get(token string) (gate.Session, bool, error) {
	var (
		sess  gate.Session
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(token))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("decoding session: %w", err)
		}
		sess.Token = token
		found = true
		return nil
	})
	if err != nil {
		return gate.Session{}, false, err
	}
	return sess, found, nil
}

func (s *Store) FindByKey(key string) (gate.Session, bool, error) {
	var (
		sess  gate.Session
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		token := tx.Bucket(keysBucket).Get([]byte(key))
		if token == nil {
			return nil
		}
		data := tx.Bucket(sessionsBucket).Get(token)
		if data == nil {
			// Dangling index entry; treat as absent.
			return nil
		}
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("decoding session: %w", err)
		}
		sess.Token = string(token)
		found = true
		return nil
	})
	if err != nil {
		return gate.Session{}, false, err
	}
	return sess, found, nil
}

func (s *Store) Update(token string, fn func(*gate.Session) error) (gate.Session, error) {
	var updated gate.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(sessionsBucket)
		data := sessions.Get([]byte(token))
		if data == nil {
			return gate.ErrNotFound
		}
		var cur gate.Session
		if err := json.Unmarshal(data, &cur); err != nil {
			return fmt.Errorf("decoding session: %w", err)
		}
		cur.Token = token
		prevKey := cur.Key

		if err := fn(&cur); err != nil {
			return err
		}
		cur.Token = token

		if cur.Key != prevKey && cur.Key != "" {
			keys := tx.Bucket(keysBucket)
			if owner := keys.Get([]byte(cur.Key)); owner != nil && string(owner) != token {
				return gate.ErrKeyTaken
			}
			if err := keys.Put([]byte(cur.Key), []byte(token)); err != nil {
				return err
			}
		}

		out, err := json.Marshal(&cur)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		if err := sessions.Put([]byte(token), out); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return gate.Session{}, err
	}
	return updated, nil
}

func (s *Store) Delete(token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(sessionsBucket)
		data := sessions.Get([]byte(token))
		if data == nil {
			return nil
		}
		var sess gate.Session
		if err := json.Unmarshal(data, &sess); err == nil && sess.Key != "" {
			if err := tx.Bucket(keysBucket).Delete([]byte(sess.Key)); err != nil {
				return err
			}
		}
		return sessions.Delete([]byte(token))
	})
}

func (s *Store) ForEach(fn func(gate.Session) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(sessionsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sess gate.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return fmt.Errorf("decoding session: %w", err)
			}
			sess.Token = string(k)
			if !fn(sess) {
				return nil
			}
		}
		return nil
	})
}
