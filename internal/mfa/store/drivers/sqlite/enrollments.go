package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
)

type enrollmentsRepo struct {
	db dbtx
}

const getEnrollment = `
SELECT user_id, email, secret, enabled_at, created_at, updated_at
FROM mfa_enrollments
WHERE user_id = ?`

func (r *enrollmentsRepo) GetEnrollment(ctx context.Context, userID string) (domain.Enrollment, error) {
	var (
		e                    domain.Enrollment
		enabledAt            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, getEnrollment, userID).Scan(
		&e.UserID, &e.Email, &e.Secret, &enabledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Enrollment{}, mapNotFound(err)
	}
	e.EnabledAt = mapNullMillisPtr(enabledAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

// The conflict branch only fires while the row is still pending, so an
// enabled enrollment is never overwritten.
const upsertPendingEnrollment = `
INSERT INTO mfa_enrollments (user_id, email, secret, enabled_at, created_at, updated_at)
VALUES (?, ?, ?, NULL, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    email      = excluded.email,
    secret     = excluded.secret,
    updated_at = excluded.updated_at
WHERE mfa_enrollments.enabled_at IS NULL`

func (r *enrollmentsRepo) UpsertPendingEnrollment(ctx context.Context, e domain.Enrollment) error {
	res, err := r.db.ExecContext(ctx, upsertPendingEnrollment,
		e.UserID, e.Email, e.Secret, toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return rowsAffectedOr(res, store.ErrAlreadyExists)
}

const enableEnrollment = `
UPDATE mfa_enrollments
SET enabled_at = ?, updated_at = ?
WHERE user_id = ? AND enabled_at IS NULL`

func (r *enrollmentsRepo) EnableEnrollment(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, enableEnrollment, toMillis(at), toMillis(at), userID)
	if err != nil {
		return err
	}
	return rowsAffectedOr(res, store.ErrNotFound)
}

func (r *enrollmentsRepo) DeleteEnrollment(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_enrollments WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return rowsAffectedOr(res, store.ErrNotFound)
}
