package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/idx"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const (
	DefaultBackupCodeCount  = 10
	DefaultBackupCodeLength = 8

	qrCodeSize = 256
)

// Enrollment metric stages.
const (
	stageBegin      = "begin"
	stageConfirm    = "confirm"
	stageRegenerate = "regenerate"
	stageDisable    = "disable"
)

// EnrollmentService drives NotEnrolled -> PendingConfirmation -> Enabled and
// the post-enrollment management operations.
type EnrollmentService struct {
	Store   store.Store
	Ledger  *Ledger
	Metrics *metricsx.MFA
	Now     func() time.Time

	Issuer           string
	BackupCodeCount  int
	BackupCodeLength int
}

func NewEnrollmentService(s store.Store, ledger *Ledger, m *metricsx.MFA, issuer string) *EnrollmentService {
	return &EnrollmentService{
		Store:            s,
		Ledger:           ledger,
		Metrics:          m,
		Now:              time.Now,
		Issuer:           issuer,
		BackupCodeCount:  DefaultBackupCodeCount,
		BackupCodeLength: DefaultBackupCodeLength,
	}
}

// BeginSetup stages a fresh secret and backup code batch for the user. Any
// previous pending setup is replaced. The plaintext codes and secret are
// returned once and are not recoverable afterwards.
func (s *EnrollmentService) BeginSetup(ctx context.Context, userID, email string) (domain.SetupResponse, error) {
	l := slogx.FromContext(ctx).With("user_id", userID)

	current, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.SetupResponse{}, storageErr("get enrollment", err)
	case current.State() == domain.StateEnabled:
		return domain.SetupResponse{}, ErrAlreadyEnabled
	}

	account := email
	if account == "" {
		account = userID
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.SetupResponse{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return domain.SetupResponse{}, err
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.Enrollments().UpsertPendingEnrollment(ctx, domain.Enrollment{
			UserID:    userID,
			Email:     email,
			Secret:    key.Secret(),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrAlreadyEnabled
		}
		if err != nil {
			return storageErr("upsert enrollment", err)
		}
		return replaceBackupCodes(ctx, tx, userID, hashes, now)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyEnabled) {
			return domain.SetupResponse{}, err
		}
		return domain.SetupResponse{}, asStorageErr("begin setup", err)
	}

	qr, err := encodeQRCode(key)
	if err != nil {
		// The URI alone is enough to enroll.
		l.Warn("failed to render provisioning qr code", "error", err)
	}

	s.Metrics.ObserveEnrollment(stageBegin)
	l.Info("mfa setup started")

	return domain.SetupResponse{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       qr,
		Issuer:          s.Issuer,
		Account:         account,
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup enables a pending enrollment once the user proves they hold
// the secret. Wrong codes here do not count towards login lockout.
func (s *EnrollmentService) ConfirmSetup(ctx context.Context, userID, code string) (domain.SetupConfirmation, error) {
	enr, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SetupConfirmation{}, ErrSetupNotInitiated
	}
	if err != nil {
		return domain.SetupConfirmation{}, storageErr("get enrollment", err)
	}

	switch enr.State() {
	case domain.StateEnabled:
		return domain.SetupConfirmation{}, ErrAlreadyEnabled
	case domain.StatePendingConfirmation:
	default:
		return domain.SetupConfirmation{}, ErrSetupNotInitiated
	}
	if enr.Secret == "" {
		return domain.SetupConfirmation{}, ErrSetupNotInitiated
	}

	now := s.now()
	if !validateTOTP(code, enr.Secret, now) {
		return domain.SetupConfirmation{}, ErrInvalidCode
	}

	err = s.Store.Enrollments().EnableEnrollment(ctx, userID, now)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent confirm won.
		return domain.SetupConfirmation{}, ErrAlreadyEnabled
	}
	if err != nil {
		return domain.SetupConfirmation{}, storageErr("enable enrollment", err)
	}

	s.Metrics.ObserveEnrollment(stageConfirm)
	slogx.FromContext(ctx).Info("mfa enabled", "user_id", userID)

	return domain.SetupConfirmation{Enabled: true, EnabledAt: now}, nil
}

// Status reports the enrollment state and how many backup codes remain.
func (s *EnrollmentService) Status(ctx context.Context, userID string) (domain.Status, error) {
	enr, err := s.Store.Enrollments().GetEnrollment(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Status{State: domain.StateNotEnrolled}, nil
	}
	if err != nil {
		return domain.Status{}, storageErr("get enrollment", err)
	}

	st := domain.Status{State: enr.State(), EnabledAt: enr.EnabledAt}
	if st.State != domain.StateEnabled {
		return st, nil
	}

	st.RemainingBackupCodes, err = s.Store.BackupCodes().CountUnconsumedBackupCodes(ctx, userID)
	if err != nil {
		return domain.Status{}, storageErr("count backup codes", err)
	}
	return st, nil
}

// RegenerateBackupCodes replaces the whole batch after a fresh TOTP check.
func (s *EnrollmentService) RegenerateBackupCodes(ctx context.Context, userID, code string, meta domain.RequestMeta) ([]string, error) {
	if _, err := s.stepUp(ctx, userID, code, meta); err != nil {
		return nil, err
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx, userID, hashes, now)
	})
	if err != nil {
		return nil, asStorageErr("regenerate backup codes", err)
	}

	s.Metrics.ObserveEnrollment(stageRegenerate)
	slogx.FromContext(ctx).Info("backup codes regenerated", "user_id", userID)
	return codes, nil
}

// Disable removes the enrollment and its backup codes after a fresh TOTP
// check, returning the user to NotEnrolled.
func (s *EnrollmentService) Disable(ctx context.Context, userID, code string, meta domain.RequestMeta) error {
	if _, err := s.stepUp(ctx, userID, code, meta); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return storageErr("delete backup codes", err)
		}
		if err := tx.Enrollments().DeleteEnrollment(ctx, userID); err != nil {
			return storageErr("delete enrollment", err)
		}
		return nil
	})
	if err != nil {
		return asStorageErr("disable mfa", err)
	}

	s.Metrics.ObserveEnrollment(stageDisable)
	slogx.FromContext(ctx).Info("mfa disabled", "user_id", userID)
	return nil
}

// stepUp re-checks a TOTP code for an enabled user. It shares the login
// ledger so these endpoints cannot be used to bypass lockout.
func (s *EnrollmentService) stepUp(ctx context.Context, userID, code string, meta domain.RequestMeta) (domain.Enrollment, error) {
	if err := s.Ledger.guard(ctx, userID); err != nil {
		return domain.Enrollment{}, err
	}

	enr, err := loadUsableEnrollment(ctx, s.Store, userID)
	if err != nil {
		return domain.Enrollment{}, err
	}

	if !validateTOTP(code, enr.Secret, s.now()) {
		rec, err := s.Ledger.RecordFailure(ctx, userID, domain.MethodTOTP, meta)
		if err != nil {
			return domain.Enrollment{}, err
		}
		return domain.Enrollment{}, &InvalidCodeError{RemainingAttempts: rec.Remaining(s.Ledger.Policy)}
	}

	if err := s.Ledger.Clear(ctx, userID); err != nil {
		return domain.Enrollment{}, err
	}
	return enr, nil
}

func (s *EnrollmentService) newBackupCodes() ([]string, []string, error) {
	count := s.BackupCodeCount
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	length := s.BackupCodeLength
	if length <= 0 {
		length = DefaultBackupCodeLength
	}

	codes, err := cryptox.GenerateBackupCodes(count, length)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i], err = cryptox.HashSecret(c)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
	}
	return codes, hashes, nil
}

func (s *EnrollmentService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func replaceBackupCodes(ctx context.Context, tx store.Tx, userID string, hashes []string, now time.Time) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
		return storageErr("delete backup codes", err)
	}
	for i, h := range hashes {
		err := tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.NewAt(now).String(),
			UserID:    userID,
			CodeHash:  h,
			Position:  i,
			CreatedAt: now,
		})
		if err != nil {
			return storageErr("create backup code", err)
		}
	}
	return nil
}

// asStorageErr leaves service errors alone and wraps anything else that
// escaped a transaction (begin or commit failures).
func asStorageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) || KindOf(err) != KindInternal {
		return err
	}
	return storageErr(op, err)
}

func encodeQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
