package service

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
)

func TestEnrollmentService_BeginSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	require.NotEmpty(t, setup.Secret)
	require.Equal(t, "TwoFactorTest", setup.Issuer)
	require.Equal(t, "alice@example.com", setup.Account)

	u, err := url.Parse(setup.ProvisioningURI)
	require.NoError(t, err)
	require.Equal(t, "otpauth", u.Scheme)
	require.Equal(t, "totp", u.Host)
	require.Equal(t, "/TwoFactorTest:alice@example.com", u.Path)
	require.Equal(t, setup.Secret, u.Query().Get("secret"))
	require.Equal(t, "TwoFactorTest", u.Query().Get("issuer"))

	png, err := base64.StdEncoding.DecodeString(setup.QRCodePNG)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	require.Len(t, setup.BackupCodes, 10)
	seen := map[string]bool{}
	for _, c := range setup.BackupCodes {
		require.Len(t, c, 8)
		require.False(t, seen[c])
		seen[c] = true
		for _, r := range c {
			require.Contains(t, cryptox.BackupCodeAlphabet, string(r))
		}
	}

	// Only hashes are stored.
	stored, err := f.store.BackupCodes().ListUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored, 10)
	for i, c := range stored {
		require.Equal(t, i, c.Position)
		require.NotContains(t, c.CodeHash, setup.BackupCodes[i])
		require.NoError(t, cryptox.VerifySecret(setup.BackupCodes[i], c.CodeHash))
	}

	st, err := f.enroll.Status(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingConfirmation, st.State)
}

func TestEnrollmentService_BeginSetupOverwritesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	second, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	stored, err := f.store.BackupCodes().ListUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored, 10)
	require.NoError(t, cryptox.VerifySecret(second.BackupCodes[0], stored[0].CodeHash))

	// The first secret no longer confirms.
	_, err = f.enroll.ConfirmSetup(ctx, "alice", f.code(t, first.Secret))
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.enroll.ConfirmSetup(ctx, "alice", f.code(t, second.Secret))
	require.NoError(t, err)
}

func TestEnrollmentService_BeginSetupAlreadyEnabled(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "alice")

	_, err := f.enroll.BeginSetup(context.Background(), "alice", "alice@example.com")
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestEnrollmentService_ConfirmSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	conf, err := f.enroll.ConfirmSetup(ctx, "alice", f.code(t, setup.Secret))
	require.NoError(t, err)
	require.True(t, conf.Enabled)
	require.Equal(t, f.clock.Now(), conf.EnabledAt)

	st, err := f.enroll.Status(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StateEnabled, st.State)
	require.Equal(t, 10, st.RemainingBackupCodes)

	_, err = f.enroll.ConfirmSetup(ctx, "alice", f.code(t, setup.Secret))
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestEnrollmentService_ConfirmSetupNotInitiated(t *testing.T) {
	f := newFixture(t)

	_, err := f.enroll.ConfirmSetup(context.Background(), "alice", "123456")
	require.ErrorIs(t, err, ErrSetupNotInitiated)
	require.Equal(t, KindSetupNotInitiated, KindOf(err))
}

func TestEnrollmentService_ConfirmFailuresDoNotTouchLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	wrong := f.wrongCode(t, setup.Secret)

	for range 10 {
		_, err := f.enroll.ConfirmSetup(ctx, "alice", wrong)
		require.ErrorIs(t, err, ErrInvalidCode)
		_, ok := RemainingAttempts(err)
		require.False(t, ok)
	}

	remaining, err := f.ledger.RemainingAttempts(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 5, remaining)

	_, err = f.enroll.ConfirmSetup(ctx, "alice", f.code(t, setup.Secret))
	require.NoError(t, err)
}

func TestEnrollmentService_StatusNotEnrolled(t *testing.T) {
	f := newFixture(t)

	st, err := f.enroll.Status(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, domain.StateNotEnrolled, st.State)
	require.Zero(t, st.RemainingBackupCodes)
}

func TestEnrollmentService_RegenerateBackupCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret, oldCodes := f.enable(t, "alice")

	_, err := f.backup.Verify(ctx, "alice", oldCodes[0], domain.RequestMeta{})
	require.NoError(t, err)

	newCodes, err := f.enroll.RegenerateBackupCodes(ctx, "alice", f.code(t, secret), domain.RequestMeta{})
	require.NoError(t, err)
	require.Len(t, newCodes, 10)

	st, err := f.enroll.Status(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 10, st.RemainingBackupCodes)

	_, err = f.backup.Verify(ctx, "alice", oldCodes[1], domain.RequestMeta{})
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.backup.Verify(ctx, "alice", newCodes[1], domain.RequestMeta{})
	require.NoError(t, err)
}

func TestEnrollmentService_StepUpSharesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret, _ := f.enable(t, "alice")
	wrong := f.wrongCode(t, secret)

	for i := 1; i <= 5; i++ {
		_, err := f.enroll.RegenerateBackupCodes(ctx, "alice", wrong, domain.RequestMeta{})
		require.ErrorIs(t, err, ErrInvalidCode)
		remaining, ok := RemainingAttempts(err)
		require.True(t, ok)
		require.Equal(t, 5-i, remaining)
	}

	err := f.enroll.Disable(ctx, "alice", f.code(t, secret), domain.RequestMeta{})
	require.ErrorIs(t, err, ErrLockedOut)

	_, err = f.totp.Verify(ctx, "alice", f.code(t, secret), domain.RequestMeta{})
	require.ErrorIs(t, err, ErrLockedOut)
}

func TestEnrollmentService_Disable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret, _ := f.enable(t, "alice")

	require.NoError(t, f.enroll.Disable(ctx, "alice", f.code(t, secret), domain.RequestMeta{}))

	st, err := f.enroll.Status(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StateNotEnrolled, st.State)

	n, err := f.store.BackupCodes().CountUnconsumedBackupCodes(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = f.totp.Verify(ctx, "alice", f.code(t, secret), domain.RequestMeta{})
	require.ErrorIs(t, err, ErrNotConfigured)

	// Setup can start over.
	_, err = f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
}

func TestEnrollmentService_DisableRequiresEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	err = f.enroll.Disable(ctx, "alice", f.code(t, setup.Secret), domain.RequestMeta{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestEnrollmentService_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.enroll.BeginSetup(context.Background(), "alice", "alice@example.com")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = f.enroll.ConfirmSetup(context.Background(), "alice", "123456")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = f.enroll.Status(context.Background(), "alice")
	require.ErrorIs(t, err, ErrStorageUnavailable)
}
