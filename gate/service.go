package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkgate/linkgate/ratelimit"
)

const (
	// DefaultTTL is the validity horizon of a session from creation.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxAddresses is the allow-list cap per credential.
	DefaultMaxAddresses = 3

	defaultKeyLimit     = 10
	defaultAddressLimit = 20
	defaultLimitWindow  = time.Minute

	// mintRetries bounds in-process retries on token or key collisions
	// before surfacing an error. Collisions are astronomically unlikely
	// at these entropy sizes; the loop exists so one is never ignored.
	mintRetries = 5
)

// Service orchestrates the credential lifecycle over a Store. All
// operations are safe for concurrent use.
type Service struct {
	store Store

	ttl          time.Duration
	maxAddresses int

	keyLimiter  *ratelimit.Limiter
	addrLimiter *ratelimit.Limiter

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the 24-hour session validity horizon.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithMaxAddresses overrides the per-credential allow-list cap.
func WithMaxAddresses(n int) Option {
	return func(s *Service) { s.maxAddresses = n }
}

// WithKeyLimit overrides the per-key check budget (default 10/60s).
func WithKeyLimit(max int, window time.Duration) Option {
	return func(s *Service) { s.keyLimiter = ratelimit.New(max, window) }
}

// WithAddressLimit overrides the per-address check budget (default 20/60s).
func WithAddressLimit(max int, window time.Duration) Option {
	return func(s *Service) { s.addrLimiter = ratelimit.New(max, window) }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock injects the time source. Used by tests to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		ttl:          DefaultTTL,
		maxAddresses: DefaultMaxAddresses,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keyLimiter == nil {
		s.keyLimiter = ratelimit.New(defaultKeyLimit, defaultLimitWindow)
	}
	if s.addrLimiter == nil {
		s.addrLimiter = ratelimit.New(defaultAddressLimit, defaultLimitWindow)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// TTL returns the configured session validity horizon.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// BeginResult is returned by Begin. The proof is returned exactly once
// and stored only as a hash; the caller embeds token and proof into the
// redirect destination.
type BeginResult struct {
	Token     string
	Proof     string
	ExpiresAt time.Time
}

// Begin creates a new session owned by ownerAddr. The owner address is
// the first entry of the allow-list.
func (s *Service) Begin(ownerAddr string) (BeginResult, error) {
	s.Sweep()

	for i := 0; i < mintRetries; i++ {
		token := newToken()
		proof := newProof()
		sess := Session{
			Token:            token,
			ProofHash:        hashProof(proof),
			CreatedAt:        s.now(),
			OwnerAddress:     ownerAddr,
			AllowedAddresses: []string{ownerAddr},
			MaxAddresses:     s.maxAddresses,
		}
		err := s.store.Create(sess)
		if errors.Is(err, ErrTokenExists) {
			continue
		}
		if err != nil {
			return BeginResult{}, fmt.Errorf("creating session: %w", err)
		}
		s.logger.Debug("session created", "owner", ownerAddr)
		return BeginResult{
			Token:     token,
			Proof:     proof,
			ExpiresAt: sess.ExpiresAt(s.ttl),
		}, nil
	}
	return BeginResult{}, fmt.Errorf("could not mint a unique token after %d attempts", mintRetries)
}

// CompleteVerification transitions a session from Created to Verified and
// returns the issued key with its expiry. The proof must match the one
// minted at Begin. Verification is idempotent: a session that is already
// Verified returns its existing key.
//
// When the verifying address differs from the owner it is folded into the
// allow-list (it counts toward the device cap); the owner recorded at
// Begin stays the owner. The external redirect may legitimately be
// followed from a different network, and folding keeps both addresses
// usable.
func (s *Service) CompleteVerification(token, proof, callerAddr string) (string, time.Time, error) {
	sess, ok, err := s.store.Get(token)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrNotFound
	}
	if sess.Expired(s.now(), s.ttl) {
		_ = s.store.Delete(token)
		return "", time.Time{}, ErrExpired
	}
	s.Sweep()
	if subtle.ConstantTimeCompare(sess.ProofHash, hashProof(proof)) != 1 {
		return "", time.Time{}, ErrInvalidProof
	}
	if sess.Verified() {
		return sess.Key, sess.ExpiresAt(s.ttl), nil
	}

	for i := 0; i < mintRetries; i++ {
		key := newKey()
		if _, taken, err := s.store.FindByKey(key); err != nil {
			return "", time.Time{}, fmt.Errorf("checking key uniqueness: %w", err)
		} else if taken {
			continue
		}

		updated, err := s.store.Update(token, func(cur *Session) error {
			if cur.Verified() {
				// Lost the race to a concurrent verification; keep the
				// existing key rather than minting a second one.
				return nil
			}
			cur.Key = key
			cur.VerifiedAt = s.now()
			if callerAddr != "" && callerAddr != cur.OwnerAddress {
				// Best effort: a full list just means the verifying
				// address is not added.
				_ = authorizeAddress(cur, callerAddr)
			}
			return nil
		})
		switch {
		case errors.Is(err, ErrKeyTaken):
			continue
		case errors.Is(err, ErrNotFound):
			return "", time.Time{}, ErrNotFound
		case err != nil:
			return "", time.Time{}, fmt.Errorf("issuing key: %w", err)
		}
		s.logger.Debug("session verified", "caller", callerAddr)
		return updated.Key, updated.ExpiresAt(s.ttl), nil
	}
	return "", time.Time{}, fmt.Errorf("could not mint a unique key after %d attempts", mintRetries)
}

// FetchKey returns the issued key for a verified session. It fails with
// ErrNotVerified before CompleteVerification, and ErrExpired past TTL.
func (s *Service) FetchKey(token string) (key string, createdAt, expiresAt time.Time, err error) {
	sess, ok, err := s.store.Get(token)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return "", time.Time{}, time.Time{}, ErrNotFound
	}
	if sess.Expired(s.now(), s.ttl) {
		_ = s.store.Delete(token)
		return "", time.Time{}, time.Time{}, ErrExpired
	}
	s.Sweep()
	if !sess.Verified() {
		return "", time.Time{}, time.Time{}, ErrNotVerified
	}
	return sess.Key, sess.CreatedAt, sess.ExpiresAt(s.ttl), nil
}

// CheckResult is returned by CheckKey.
type CheckResult struct {
	ExpiresAt  time.Time
	CheckCount uint64
}

// CheckKey validates a key presented from callerAddr. Both the per-key
// and per-address budgets must pass, then the address is authorized
// against the allow-list and the check counter incremented, all inside
// one store critical section.
func (s *Service) CheckKey(key, callerAddr string) (CheckResult, error) {
	sess, ok, err := s.store.FindByKey(key)
	if err != nil {
		return CheckResult{}, fmt.Errorf("looking up key: %w", err)
	}
	if !ok {
		return CheckResult{}, ErrNotFound
	}
	if sess.Expired(s.now(), s.ttl) {
		_ = s.store.Delete(sess.Token)
		return CheckResult{}, ErrExpired
	}
	s.Sweep()

	if ok, _ := s.keyLimiter.Allow(key); !ok {
		return CheckResult{}, ErrRateLimited
	}
	if ok, _ := s.addrLimiter.Allow(callerAddr); !ok {
		return CheckResult{}, ErrRateLimited
	}

	updated, err := s.store.Update(sess.Token, func(cur *Session) error {
		if err := authorizeAddress(cur, callerAddr); err != nil {
			return err
		}
		cur.CheckCount++
		return nil
	})
	switch {
	case errors.Is(err, ErrDeviceLimitExceeded):
		return CheckResult{}, ErrDeviceLimitExceeded
	case errors.Is(err, ErrNotFound):
		// Swept or deleted between lookup and update.
		return CheckResult{}, ErrNotFound
	case err != nil:
		return CheckResult{}, fmt.Errorf("recording key check: %w", err)
	}
	return CheckResult{
		ExpiresAt:  updated.ExpiresAt(s.ttl),
		CheckCount: updated.CheckCount,
	}, nil
}
