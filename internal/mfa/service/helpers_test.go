package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "mfa-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Emit(_ context.Context, e domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) actions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func (s *recordingSink) count(a domain.AuditAction) int {
	n := 0
	for _, got := range s.actions() {
		if got == a {
			n++
		}
	}
	return n
}

func (s *recordingSink) last() domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Emit(context.Context, domain.AuditEvent) error {
	return errors.New("sink down")
}

type fixture struct {
	clock     *fakeClock
	store     *sqlite.Store
	attempts  *memory.AttemptStore
	sink      *recordingSink
	audit     *AuditRecorder
	ledger    *Ledger
	codec     *CredentialCodec
	totp      *TOTPVerifier
	backup    *BackupCodeVerifier
	enroll    *EnrollmentService
	challenge *ChallengeService
}

func newFixture(t *testing.T, extraSinks ...AuditSink) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		clock:    newFakeClock(),
		store:    st,
		attempts: memory.NewAttemptStore(),
		sink:     &recordingSink{},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	f.audit = NewAuditRecorder(logger, nil, append([]AuditSink{f.sink}, extraSinks...)...)
	f.audit.Now = f.clock.Now

	f.ledger = NewLedger(f.attempts, domain.DefaultLockoutPolicy, f.audit, nil)
	f.ledger.Now = f.clock.Now

	f.codec, err = NewCredentialCodec(testSecret, 5*time.Minute, "test")
	require.NoError(t, err)
	f.codec.Now = f.clock.Now

	f.totp = NewTOTPVerifier(st, f.ledger, f.audit, nil)
	f.totp.Now = f.clock.Now

	f.backup = NewBackupCodeVerifier(st, f.ledger, f.audit, nil)
	f.backup.Now = f.clock.Now

	f.enroll = NewEnrollmentService(st, f.ledger, nil, "TwoFactorTest")
	f.enroll.Now = f.clock.Now

	f.challenge = NewChallengeService(f.codec, st, f.totp, f.backup)
	return f
}

// enable walks a user through setup and returns the secret and backup codes.
func (f *fixture) enable(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := f.enroll.BeginSetup(ctx, userID, userID+"@example.com")
	require.NoError(t, err)

	_, err = f.enroll.ConfirmSetup(ctx, userID, f.code(t, setup.Secret))
	require.NoError(t, err)
	return setup.Secret, setup.BackupCodes
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)
	return c
}

// wrongCode returns a six digit code that is not valid in the drift window.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.GenerateCode(secret, f.clock.Now().Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no invalid code found")
	return ""
}
