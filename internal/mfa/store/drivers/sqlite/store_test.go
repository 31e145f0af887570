package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofactor/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedPending(t *testing.T, st store.Store, userID string, codes int) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, st.Enrollments().UpsertPendingEnrollment(ctx, domain.Enrollment{
		UserID:    userID,
		Email:     userID + "@example.com",
		Secret:    "JBSWY3DPEHPK3PXP",
		CreatedAt: now,
		UpdatedAt: now,
	}))
	for i := range codes {
		require.NoError(t, st.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.New().String(),
			UserID:    userID,
			CodeHash:  "hash",
			Position:  i,
			CreatedAt: now,
		}))
	}
}

func TestEnrollments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing enrollment is not found", func(t *testing.T) {
		st := newTestStore(t)
		_, err := st.Enrollments().GetEnrollment(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("pending upsert overwrites secret", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 0)

		now := time.Unix(1_700_000_100, 0).UTC()
		require.NoError(t, st.Enrollments().UpsertPendingEnrollment(ctx, domain.Enrollment{
			UserID: "u1", Email: "new@example.com", Secret: "NEWSECRET", CreatedAt: now, UpdatedAt: now,
		}))

		e, err := st.Enrollments().GetEnrollment(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "NEWSECRET", e.Secret)
		require.Equal(t, "new@example.com", e.Email)
		require.Equal(t, domain.StatePendingConfirmation, e.State())
	})

	t.Run("enable flips pending once", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 0)

		at := time.Unix(1_700_000_200, 0).UTC()
		require.NoError(t, st.Enrollments().EnableEnrollment(ctx, "u1", at))

		e, err := st.Enrollments().GetEnrollment(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, domain.StateEnabled, e.State())
		require.True(t, e.EnabledAt.Equal(at))

		err = st.Enrollments().EnableEnrollment(ctx, "u1", at)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("enabled enrollment is not overwritten", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 0)
		require.NoError(t, st.Enrollments().EnableEnrollment(ctx, "u1", time.Now()))

		err := st.Enrollments().UpsertPendingEnrollment(ctx, domain.Enrollment{
			UserID: "u1", Email: "x@example.com", Secret: "OTHER", CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		e, err := st.Enrollments().GetEnrollment(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "JBSWY3DPEHPK3PXP", e.Secret)
	})
}

func TestBackupCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consume is an update not a delete", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 10)

		codes, err := st.BackupCodes().ListUnconsumedBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, codes, 10)
		require.Equal(t, 0, codes[0].Position)

		require.NoError(t, st.BackupCodes().ConsumeBackupCode(ctx, codes[3].ID, time.Now()))

		count, err := st.BackupCodes().CountUnconsumedBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 9, count)

		err = st.BackupCodes().ConsumeBackupCode(ctx, codes[3].ID, time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consume succeeds once", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 1)

		codes, err := st.BackupCodes().ListUnconsumedBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, codes, 1)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := st.BackupCodes().ConsumeBackupCode(ctx, codes[0].ID, time.Now())
				if err == nil {
					wins.Add(1)
				} else if !errors.Is(err, store.ErrNotFound) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("delete all within tx", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 5)

		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.BackupCodes().DeleteAllBackupCodes(ctx, "u1")
		})
		require.NoError(t, err)

		count, err := st.BackupCodes().CountUnconsumedBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("tx rolls back on error", func(t *testing.T) {
		st := newTestStore(t)
		seedPending(t, st, "u1", 5)

		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, "u1"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		count, err := st.BackupCodes().CountUnconsumedBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 5, count)
	})
}

func TestAuditEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	base := time.Unix(1_700_000_000, 0).UTC()
	remaining := 9
	events := []domain.AuditEvent{
		{
			ID: idx.New().String(), Action: domain.ActionLoginFailed, UserID: "u1", Level: domain.LevelWarn,
			Details: domain.AuditDetails{Method: domain.MethodTOTP}, OccurredAt: base,
		},
		{
			ID: idx.New().String(), Action: domain.ActionLoginSuccess, UserID: "u1", Level: domain.LevelInfo,
			Details:    domain.AuditDetails{Method: domain.MethodBackupCode, RemainingBackupCodes: &remaining},
			Meta:       domain.RequestMeta{IP: "203.0.113.1", UserAgent: "curl/8"},
			OccurredAt: base.Add(time.Minute),
		},
	}
	for _, e := range events {
		require.NoError(t, st.AuditEvents().CreateAuditEvent(ctx, e))
	}

	got, err := st.AuditEvents().ListAuditEventsByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.ActionLoginSuccess, got[0].Action)
	require.NotNil(t, got[0].Details.RemainingBackupCodes)
	require.Equal(t, 9, *got[0].Details.RemainingBackupCodes)
	require.Equal(t, "203.0.113.1", got[0].Meta.IP)
	require.Nil(t, got[1].Details.RemainingBackupCodes)

	n, err := st.AuditEvents().DeleteAuditEventsBefore(ctx, base.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestFileStore_DeleteEnrollmentCascades(t *testing.T) {
	st, err := sqlite.NewStore(sqlite.FileDSN(filepath.Join(t.TempDir(), "mfa.db")))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		seedPending(t, st, id, 3)
		require.NoError(t, st.Enrollments().DeleteEnrollment(ctx, id))

		n, err := st.BackupCodes().CountUnconsumedBackupCodes(ctx, id)
		require.NoError(t, err)
		require.Zero(t, n, id)
	}
}
