package domain

import "time"

// LockoutPolicy bounds failed second-factor attempts per user.
type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// DefaultLockoutPolicy allows 5 failures then locks for 15 minutes.
var DefaultLockoutPolicy = LockoutPolicy{
	MaxAttempts:     5,
	LockoutDuration: 15 * time.Minute,
}

// AttemptRecord tracks failed verifications for one user. The zero value
// is a user with no failures.
type AttemptRecord struct {
	UserID        string
	FailureCount  int
	LockedUntil   *time.Time
	LastFailureAt time.Time
}

// LockedAt reports whether the lock window is active at now. An elapsed
// LockedUntil counts as unlocked without being cleared.
func (r AttemptRecord) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// Remaining returns max(0, MaxAttempts - FailureCount).
func (r AttemptRecord) Remaining(p LockoutPolicy) int {
	return max(0, p.MaxAttempts-r.FailureCount)
}

// ApplyFailure increments the counter and sets a lock when the threshold is
// reached. An active lock is never shortened or extended. It reports whether
// this call started a new lock.
func (r *AttemptRecord) ApplyFailure(p LockoutPolicy, now time.Time) bool {
	r.FailureCount++
	r.LastFailureAt = now

	if r.FailureCount < p.MaxAttempts || r.LockedAt(now) {
		return false
	}

	until := now.Add(p.LockoutDuration)
	r.LockedUntil = &until
	return true
}
