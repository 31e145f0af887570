package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

type auditEventsRepo struct {
	db dbtx
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO mfa_audit_events
    (id, user_id, action, level, method, remaining_backup_codes, ip, user_agent, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.UserID,
		string(e.Action),
		string(e.Level),
		string(e.Details.Method),
		mapOptionalInt(e.Details.RemainingBackupCodes),
		e.Meta.IP,
		e.Meta.UserAgent,
		toMillis(e.OccurredAt),
	)
	return err
}

func (r *auditEventsRepo) ListAuditEventsByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, action, level, method, remaining_backup_codes, ip, user_agent, occurred_at
FROM mfa_audit_events
WHERE user_id = ?
ORDER BY occurred_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e                     domain.AuditEvent
			action, level, method string
			remaining             sql.NullInt64
			occurredAt            int64
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &action, &level, &method, &remaining,
			&e.Meta.IP, &e.Meta.UserAgent, &occurredAt,
		); err != nil {
			return nil, err
		}
		e.Action = domain.AuditAction(action)
		e.Level = domain.AuditLevel(level)
		e.Details = domain.AuditDetails{
			Method:               domain.Method(method),
			RemainingBackupCodes: mapNullIntPtr(remaining),
		}
		e.OccurredAt = fromMillis(occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *auditEventsRepo) DeleteAuditEventsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_audit_events WHERE occurred_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
