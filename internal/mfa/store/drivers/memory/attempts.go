// Package memory holds process-local store implementations. Lockout state
// kept here is per instance and lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

type entry struct {
	mu      sync.Mutex
	rec     domain.AttemptRecord
	removed bool
}

// AttemptStore is an in-memory AttemptStore. Each user has its own mutex so
// concurrent failures for one user are serialized without blocking others.
type AttemptStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{entries: make(map[string]*entry)}
}

// lockEntry returns the user's entry locked, creating it if needed.
func (s *AttemptStore) lockEntry(userID string) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[userID]
		if !ok {
			e = &entry{rec: domain.AttemptRecord{UserID: userID}}
			s.entries[userID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		// Purged between lookup and lock; retry against the fresh map.
		e.mu.Unlock()
	}
}

func (s *AttemptStore) Get(_ context.Context, userID string) (domain.AttemptRecord, error) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return domain.AttemptRecord{UserID: userID}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRecord(e.rec), nil
}

func (s *AttemptStore) Increment(
	_ context.Context,
	userID string,
	policy domain.LockoutPolicy,
	now time.Time,
) (domain.AttemptRecord, bool, error) {
	e := s.lockEntry(userID)
	defer e.mu.Unlock()

	locked := e.rec.ApplyFailure(policy, now)
	return copyRecord(e.rec), locked, nil
}

func (s *AttemptStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok {
		delete(s.entries, userID)
	}
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return nil
}

// DeleteStale drops idle records that never reached the lockout threshold.
// Records that locked keep their count until Clear.
func (s *AttemptStore) DeleteStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for userID, e := range s.entries {
		e.mu.Lock()
		if e.rec.LockedUntil == nil && e.rec.LastFailureAt.Before(before) {
			e.removed = true
			delete(s.entries, userID)
			deleted++
		}
		e.mu.Unlock()
	}
	return deleted, nil
}

func (s *AttemptStore) Ping(context.Context) error { return nil }

// Len reports how many users currently have a record.
func (s *AttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func copyRecord(r domain.AttemptRecord) domain.AttemptRecord {
	if r.LockedUntil != nil {
		until := *r.LockedUntil
		r.LockedUntil = &until
	}
	return r
}
