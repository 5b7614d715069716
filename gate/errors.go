package gate

import "errors"

var (
	// ErrNotFound is returned when a token or key does not resolve to a
	// live session.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a session is past its TTL. It is
	// preferred over ErrNotFound whenever the two are distinguishable,
	// because it tells the caller to start over rather than retry.
	ErrExpired = errors.New("session expired")
	// ErrNotVerified is returned by FetchKey before verification completes.
	ErrNotVerified = errors.New("session not verified")
	// ErrInvalidProof is returned when the verification proof does not
	// match the one minted at Begin.
	ErrInvalidProof = errors.New("verification proof mismatch")
	// ErrDeviceLimitExceeded is returned when a key is used from more
	// distinct client addresses than the session allows.
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	// ErrRateLimited is returned when either the per-key or per-address
	// request budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrTokenExists is returned by Store.Create on a token collision.
	ErrTokenExists = errors.New("token already exists")
	// ErrKeyTaken is returned by Store.Update when a mutator tries to
	// bind a key that is already indexed to another session.
	ErrKeyTaken = errors.New("key already bound to another session")
)
