package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, c domain.BackupCode) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO mfa_backup_codes (id, user_id, code_hash, position, consumed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CodeHash, c.Position, mapOptionalMillis(c.ConsumedAt), toMillis(c.CreatedAt),
	)
	return err
}

func (r *backupCodesRepo) ListUnconsumedBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, code_hash, position, consumed_at, created_at
FROM mfa_backup_codes
WHERE user_id = ? AND consumed_at IS NULL
ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var (
			c          domain.BackupCode
			consumedAt sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Position, &consumedAt, &createdAt); err != nil {
			return nil, err
		}
		c.ConsumedAt = mapNullMillisPtr(consumedAt)
		c.CreatedAt = fromMillis(createdAt)
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// ConsumeBackupCode is a conditional update: of two concurrent callers only
// one sees a row affected.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE mfa_backup_codes
SET consumed_at = ?
WHERE id = ? AND consumed_at IS NULL`, toMillis(at), id)
	if err != nil {
		return err
	}
	return rowsAffectedOr(res, store.ErrNotFound)
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUnconsumedBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM mfa_backup_codes
WHERE user_id = ? AND consumed_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
