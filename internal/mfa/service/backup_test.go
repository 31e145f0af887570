package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

func TestBackupCodeVerifier_ConsumeReportsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, "alice")
	require.Len(t, codes, 10)

	v, err := f.backup.Verify(ctx, "alice", codes[3], domain.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, "alice", v.UserID)
	require.Equal(t, "alice@example.com", v.Email)
	require.Equal(t, domain.MethodBackupCode, v.Method)
	require.NotNil(t, v.RemainingBackupCodes)
	require.Equal(t, 9, *v.RemainingBackupCodes)

	ev := f.sink.last()
	require.Equal(t, domain.ActionLoginSuccess, ev.Action)
	require.Equal(t, domain.MethodBackupCode, ev.Details.Method)
	require.NotNil(t, ev.Details.RemainingBackupCodes)
	require.Equal(t, 9, *ev.Details.RemainingBackupCodes)

	v, err = f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, 8, *v.RemainingBackupCodes)
}

func TestBackupCodeVerifier_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, "alice")

	_, err := f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.NoError(t, err)

	_, err = f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.ErrorIs(t, err, ErrInvalidCode)
	remaining, ok := RemainingAttempts(err)
	require.True(t, ok)
	require.Equal(t, 4, remaining)

	// Consumed codes are kept, only flagged.
	list, err := f.store.BackupCodes().ListUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 9)
}

func TestBackupCodeVerifier_Normalizes(t *testing.T) {
	f := newFixture(t)
	_, codes := f.enable(t, "alice")

	messy := strings.ToLower(codes[1][:4]) + "-" + strings.ToLower(codes[1][4:])
	_, err := f.backup.Verify(context.Background(), "alice", " "+messy+" ", domain.RequestMeta{})
	require.NoError(t, err)
}

func TestBackupCodeVerifier_ResetsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, "alice")

	for range 4 {
		_, err := f.backup.Verify(ctx, "alice", "WRONG123", domain.RequestMeta{})
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err := f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.NoError(t, err)

	remaining, err := f.ledger.RemainingAttempts(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 5, remaining)
}

func TestBackupCodeVerifier_Exhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll.BackupCodeCount = 1
	_, codes := f.enable(t, "alice")
	require.Len(t, codes, 1)

	v, err := f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.NoError(t, err)
	require.Zero(t, *v.RemainingBackupCodes)

	// No codes left looks exactly like a wrong code.
	_, err = f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.ErrorIs(t, err, ErrInvalidCode)
	_, wrongErr := f.backup.Verify(ctx, "alice", "ZZZZZZZZ", domain.RequestMeta{})
	require.ErrorIs(t, wrongErr, ErrInvalidCode)
	require.Equal(t, KindOf(err), KindOf(wrongErr))
}

func TestBackupCodeVerifier_LockedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, "alice")

	for range 5 {
		_, err := f.backup.Verify(ctx, "alice", "WRONG123", domain.RequestMeta{})
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err := f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
	require.ErrorIs(t, err, ErrLockedOut)

	// The code was not spent while locked.
	n, err := f.store.BackupCodes().CountUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestBackupCodeVerifier_NotConfigured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	_, err = f.backup.Verify(ctx, "alice", setup.BackupCodes[0], domain.RequestMeta{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestBackupCodeVerifier_ConcurrentSameCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, "alice")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.backup.Verify(ctx, "alice", codes[0], domain.RequestMeta{})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidCode):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	n, err := f.store.BackupCodes().CountUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 9, n)
}
