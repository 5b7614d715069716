// Package gate implements the credential lifecycle engine: sessions are
// created anonymously, verified through an external redirect step, issued
// a single key, and reclaimed once their time-to-live passes.
package gate

import "time"

// State is the derived lifecycle state of a session. It is computed from
// the session fields at read time and never stored.
type State int

const (
	// StateCreated means the session exists but the redirect step has not
	// completed; no key has been issued.
	StateCreated State = iota
	// StateVerified means the proof was presented and a key is bound.
	StateVerified
	// StateExpired means the session is past its TTL horizon. Expired
	// sessions are treated as absent by every operation.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateVerified:
		return "verified"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session holds the server-side state for one credential lifecycle.
// The token is the map key in the store and is not part of the encoded
// record; persistent stores set it when decoding.
type Session struct {
	Token            string    `json:"-"`
	Key              string    `json:"key,omitempty"`
	ProofHash        []byte    `json:"proof_hash"`
	CreatedAt        time.Time `json:"created_at"`
	VerifiedAt       time.Time `json:"verified_at,omitzero"`
	OwnerAddress     string    `json:"owner_address"`
	AllowedAddresses []string  `json:"allowed_addresses"`
	MaxAddresses     int       `json:"max_addresses"`
	CheckCount       uint64    `json:"check_count"`
}

// ExpiresAt returns the absolute expiry horizon for the given TTL.
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// Verified reports whether a key has been issued for this session.
func (s *Session) Verified() bool {
	return s.Key != ""
}

// State derives the lifecycle state at the given instant.
func (s *Session) State(now time.Time, ttl time.Duration) State {
	if s.Expired(now, ttl) {
		return StateExpired
	}
	if s.Verified() {
		return StateVerified
	}
	return StateCreated
}

// Clone returns a deep copy. Stores hand out and accept clones so that
// callers can never mutate shared state outside a critical section.
func (s *Session) Clone() Session {
	out := *s
	out.ProofHash = append([]byte(nil), s.ProofHash...)
	out.AllowedAddresses = append([]string(nil), s.AllowedAddresses...)
	return out
}
