// Package ratelimit provides a sliding-window rate limiter keyed by an
// arbitrary identifier (a credential, a client address). It is a pure
// function of time and history: it holds no reference to any store and
// its state can be discarded wholesale on restart.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// shardCount stripes identifiers across independent locks so unrelated
// callers do not serialize on one mutex.
const shardCount = 64

// Limiter bounds the number of events per identifier inside any sliding
// window-length interval.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// New creates a Limiter admitting at most max events per identifier
// within any window-length interval.
func New(max int, window time.Duration) *Limiter {
	l := &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string][]time.Time)
	}
	return l
}

// Allow records an event for id if the identifier is within budget. It
// returns whether the event was admitted and the number of events
// currently inside the window (including the new one when admitted).
// Denied events are not recorded.
func (l *Limiter) Allow(id string) (bool, int) {
	sh := l.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := l.now()
	ts := trimWindow(sh.windows[id], now.Add(-l.window))
	if len(ts) >= l.max {
		sh.windows[id] = ts
		return false, len(ts)
	}
	ts = append(ts, now)
	sh.windows[id] = ts
	return true, len(ts)
}

// Sweep drops identifiers whose entire history has slid out of the
// window. Windows self-prune on Allow, so this only reclaims memory for
// identifiers that stopped calling.
func (l *Limiter) Sweep() {
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		cutoff := l.now().Add(-l.window)
		for id, ts := range sh.windows {
			if len(trimWindow(ts, cutoff)) == 0 {
				delete(sh.windows, id)
			}
		}
		sh.mu.Unlock()
	}
}

func (l *Limiter) shard(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &l.shards[h.Sum32()%shardCount]
}

// trimWindow drops timestamps at or before cutoff. Timestamps are
// appended in order, so the live suffix starts at the first survivor.
func trimWindow(ts []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(ts) && !ts[start].After(cutoff) {
		start++
	}
	return ts[start:]
}
