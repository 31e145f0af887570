package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the system of record for enrollments, backup codes and audit
// events. Sub-repositories are reached through methods so a Tx-scoped Store
// can hand out the same repos bound to the transaction.
type Store interface {
	Enrollments() Enrollments
	BackupCodes() BackupCodes
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Enrollments interface {
	// GetEnrollment returns ErrNotFound when the user never began setup.
	GetEnrollment(ctx context.Context, userID string) (domain.Enrollment, error)

	// UpsertPendingEnrollment creates or overwrites a pending enrollment.
	// Returns ErrAlreadyExists when the user's enrollment is already enabled.
	UpsertPendingEnrollment(ctx context.Context, e domain.Enrollment) error

	// EnableEnrollment flips a pending enrollment to enabled. Returns
	// ErrNotFound if there is no pending enrollment to flip.
	EnableEnrollment(ctx context.Context, userID string, at time.Time) error

	// DeleteEnrollment removes the enrollment (cascades to backup codes).
	DeleteEnrollment(ctx context.Context, userID string) error
}

type BackupCodes interface {
	CreateBackupCode(ctx context.Context, c domain.BackupCode) error

	// ListUnconsumedBackupCodes returns the user's unconsumed codes ordered by position.
	ListUnconsumedBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// ConsumeBackupCode marks a code consumed only if it is still unconsumed.
	// Returns ErrNotFound when another request consumed it first.
	ConsumeBackupCode(ctx context.Context, id string, at time.Time) error

	DeleteAllBackupCodes(ctx context.Context, userID string) error

	CountUnconsumedBackupCodes(ctx context.Context, userID string) (int, error)
}

type AuditEvents interface {
	CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error

	// ListAuditEventsByUser returns the newest events first.
	ListAuditEventsByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)

	// DeleteAuditEventsBefore is housekeeping for the retention window.
	DeleteAuditEventsBefore(ctx context.Context, before time.Time) (int, error)
}

// AttemptStore holds per-user failure counters. Implementations must make
// Increment atomic per user so that only one caller observes the lock being
// set for a given threshold crossing.
type AttemptStore interface {
	// Get returns the zero record (with UserID set) when the user has no failures.
	Get(ctx context.Context, userID string) (domain.AttemptRecord, error)

	// Increment records one failure and reports whether it started a new lock.
	Increment(
		ctx context.Context,
		userID string,
		policy domain.LockoutPolicy,
		now time.Time,
	) (domain.AttemptRecord, bool, error)

	Clear(ctx context.Context, userID string) error

	// DeleteStale drops records that never locked and whose last failure is
	// before the cutoff. A record that reached the threshold is only reset by
	// Clear. Stores with native expiry may return 0.
	DeleteStale(ctx context.Context, before time.Time) (int, error)

	Ping(ctx context.Context) error
}
