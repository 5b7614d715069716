package gate

import "time"

// Sweep removes every session past its TTL, including key index entries,
// and reclaims idle rate-limiter windows. It is idempotent and safe to
// run concurrently with other operations: the walk sees a snapshot and
// each delete is atomic, so sweeping twice in a row removes nothing the
// second time.
//
// The service calls Sweep inside each externally-facing operation, after
// the target session has been resolved, which bounds staleness to one
// request interval without a scheduler while a just-expired credential
// still reports expired rather than not-found. The scan is O(total
// sessions); acceptable while the live set stays small.
func (s *Service) Sweep() int {
	now := s.now()
	var expired []string
	if err := s.store.ForEach(func(sess Session) bool {
		if sess.Expired(now, s.ttl) {
			expired = append(expired, sess.Token)
		}
		return true
	}); err != nil {
		s.logger.Error("sweep walk failed", "error", err)
	}

	removed := 0
	for _, token := range expired {
		if err := s.store.Delete(token); err != nil {
			s.logger.Error("sweep delete failed", "error", err)
		} else {
			removed++
		}
	}

	s.keyLimiter.Sweep()
	s.addrLimiter.Sweep()

	if removed > 0 {
		s.logger.Debug("swept expired sessions", "removed", removed)
	}
	return removed
}

// RunSweeper runs Sweep on a fixed interval until stop is closed. It is
// optional: the opportunistic sweep already bounds staleness, but bursty
// deployments may want reclamation to continue while idle.
func (s *Service) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
