package gate

// Store is the authoritative map from token to session, plus the derived
// index from issued key to session.
//
// Implementations must execute every operation as a single atomic unit: a
// stale read followed by a blind overwrite would silently drop
// concurrently-applied allow-list updates or check counts. The in-memory
// implementation serializes behind a mutex; the bbolt implementation runs
// each operation in one write transaction.
type Store interface {
	// Create inserts a new session. Returns ErrTokenExists if the token
	// is already present, and ErrKeyTaken if the session carries a key
	// that is already indexed to another session.
	Create(sess Session) error

	// Get retrieves a session by token. The boolean reports presence;
	// the error reports storage failure only.
	Get(token string) (Session, bool, error)

	// FindByKey retrieves the session a key is bound to, if any.
	FindByKey(key string) (Session, bool, error)

	// Update applies fn to the session inside the store's critical
	// section and persists the result. An error from fn aborts the write
	// and is returned unchanged. Returns ErrNotFound if the token is
	// missing, and ErrKeyTaken if fn bound a key that is already indexed
	// to a different session. On success the updated session is returned.
	//
	// Keys are bound at most once: fn may take Key from empty to set,
	// never change an existing binding.
	Update(token string, fn func(*Session) error) (Session, error)

	// Delete removes a session and its key index entry. Deleting a
	// missing token is not an error.
	Delete(token string) error

	// ForEach visits a snapshot of all sessions. Returning false from fn
	// stops the walk. Visited sessions are copies; mutating them has no
	// effect on the store.
	ForEach(fn func(Session) bool) error
}
