// internal/ratelimit/memory.go
//
// In-process counter store for single-node deployments.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// Memory is a mutex-guarded counter map.  Expired entries are replaced
// lazily on the next increment and swept by a background ticker so idle
// callers do not pin memory forever.
type Memory struct {
	mu   sync.Mutex
	m    map[string]*memoryEntry
	done chan struct{}
}

const sweepInterval = 5 * time.Minute

// NewMemory starts the background sweeper.  Call Close on shutdown.
func NewMemory() *Memory {
	s := &Memory{
		m:    make(map[string]*memoryEntry),
		done: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Incr implements Store.  The read-increment-write runs under one lock so
// concurrent writers from the same caller never undercount.
func (s *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.m[key]
	if !ok || now.After(ent.expiresAt) {
		s.m[key] = &memoryEntry{count: 1, expiresAt: now.Add(ttl)}
		return 1, nil
	}
	ent.count++
	return ent.count, nil
}

// Close stops the sweeper goroutine.
func (s *Memory) Close() { close(s.done) }

func (s *Memory) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
		}

		now := time.Now()
		s.mu.Lock()
		for k, ent := range s.m {
			if now.After(ent.expiresAt) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}
