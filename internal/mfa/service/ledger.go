package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// Ledger tracks failed second-factor attempts per user and decides lockout.
// Counters for different users are independent.
type Ledger struct {
	Attempts store.AttemptStore
	Policy   domain.LockoutPolicy
	Audit    *AuditRecorder
	Metrics  *metricsx.MFA
	Now      func() time.Time

	// RevealLockedUntil exposes the unlock time on LockedOutError.
	RevealLockedUntil bool
}

func NewLedger(attempts store.AttemptStore, policy domain.LockoutPolicy, audit *AuditRecorder, m *metricsx.MFA) *Ledger {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = domain.DefaultLockoutPolicy.MaxAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = domain.DefaultLockoutPolicy.LockoutDuration
	}
	return &Ledger{
		Attempts: attempts,
		Policy:   policy,
		Audit:    audit,
		Metrics:  m,
		Now:      time.Now,
	}
}

// IsLockedOut reports whether the user's lock window is active. A lock whose
// time has passed is treated as absent without touching the counter.
func (l *Ledger) IsLockedOut(ctx context.Context, userID string) (bool, time.Time, error) {
	rec, err := l.Attempts.Get(ctx, userID)
	if err != nil {
		return false, time.Time{}, storageErr("get attempts", err)
	}
	if !rec.LockedAt(l.Now()) {
		return false, time.Time{}, nil
	}
	return true, *rec.LockedUntil, nil
}

func (l *Ledger) RemainingAttempts(ctx context.Context, userID string) (int, error) {
	rec, err := l.Attempts.Get(ctx, userID)
	if err != nil {
		return 0, storageErr("get attempts", err)
	}
	return rec.Remaining(l.Policy), nil
}

// RecordFailure increments the user's counter. Exactly one MFA_LOCKOUT event
// is emitted per threshold crossing, even under concurrent failures.
func (l *Ledger) RecordFailure(ctx context.Context, userID string, method domain.Method, meta domain.RequestMeta) (domain.AttemptRecord, error) {
	rec, newlyLocked, err := l.Attempts.Increment(ctx, userID, l.Policy, l.Now())
	if err != nil {
		return domain.AttemptRecord{}, storageErr("increment attempts", err)
	}

	if newlyLocked {
		slogx.FromContext(ctx).Warn("mfa lockout",
			"user_id", userID,
			"failures", rec.FailureCount,
			"locked_until", rec.LockedUntil,
		)
		l.Metrics.ObserveLockout()
		l.Audit.Record(ctx, domain.AuditEvent{
			Action:  domain.ActionLockout,
			UserID:  userID,
			Level:   domain.LevelWarn,
			Details: domain.AuditDetails{Method: method},
			Meta:    meta,
		})
	}

	return rec, nil
}

// Clear resets the counter after a successful verification.
func (l *Ledger) Clear(ctx context.Context, userID string) error {
	if err := l.Attempts.Clear(ctx, userID); err != nil {
		return storageErr("clear attempts", err)
	}
	return nil
}

// guard returns a locked-out error while the user's lock is active.
func (l *Ledger) guard(ctx context.Context, userID string) error {
	locked, until, err := l.IsLockedOut(ctx, userID)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	if !l.RevealLockedUntil {
		return ErrLockedOut
	}
	return &LockedOutError{LockedUntil: until}
}
