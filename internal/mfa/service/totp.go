package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const (
	totpPeriod = 30
	totpSkew   = 1 // one step either side absorbs clock drift
	totpDigits = otp.DigitsSix
)

// validateTOTP reports whether code is valid for secret at the given time.
// Malformed input is a mismatch, not an error.
func validateTOTP(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// TOTPVerifier checks login-time TOTP codes against enabled enrollments.
// It never writes to the enrollment.
type TOTPVerifier struct {
	Store   store.Store
	Ledger  *Ledger
	Audit   *AuditRecorder
	Metrics *metricsx.MFA
	Now     func() time.Time
}

func NewTOTPVerifier(s store.Store, ledger *Ledger, audit *AuditRecorder, m *metricsx.MFA) *TOTPVerifier {
	return &TOTPVerifier{
		Store:   s,
		Ledger:  ledger,
		Audit:   audit,
		Metrics: m,
		Now:     time.Now,
	}
}

// Verify returns the enrolled identity when code is valid. Failures return
// *InvalidCodeError with the attempts left after this one.
func (v *TOTPVerifier) Verify(ctx context.Context, userID, code string, meta domain.RequestMeta) (domain.Identity, error) {
	l := slogx.FromContext(ctx).With("user_id", userID, "method", domain.MethodTOTP)
	method := string(domain.MethodTOTP)

	if err := v.Ledger.guard(ctx, userID); err != nil {
		v.Metrics.ObserveVerification(method, outcomeFor(err))
		return domain.Identity{}, err
	}

	enr, err := loadUsableEnrollment(ctx, v.Store, userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			l.Warn("totp verification for user without enabled mfa")
		}
		v.Metrics.ObserveVerification(method, outcomeFor(err))
		return domain.Identity{}, err
	}

	if !validateTOTP(code, enr.Secret, v.Now()) {
		rec, err := v.Ledger.RecordFailure(ctx, userID, domain.MethodTOTP, meta)
		if err != nil {
			v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
			return domain.Identity{}, err
		}
		v.Audit.Record(ctx, loginFailed(userID, domain.MethodTOTP, meta))
		v.Metrics.ObserveVerification(method, metricsx.OutcomeInvalidCode)

		remaining := rec.Remaining(v.Ledger.Policy)
		l.Info("totp code rejected", "remaining_attempts", remaining)
		return domain.Identity{}, &InvalidCodeError{RemainingAttempts: remaining}
	}

	if err := v.Ledger.Clear(ctx, userID); err != nil {
		v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
		return domain.Identity{}, err
	}
	v.Audit.Record(ctx, loginSuccess(userID, domain.MethodTOTP, meta, nil))
	v.Metrics.ObserveVerification(method, metricsx.OutcomeSuccess)

	return domain.Identity{UserID: enr.UserID, Email: enr.Email}, nil
}

// loadUsableEnrollment returns ErrNotConfigured for absent or pending
// enrollments and a StorageError for anything the store could not answer.
func loadUsableEnrollment(ctx context.Context, s store.Store, userID string) (domain.Enrollment, error) {
	enr, err := s.Enrollments().GetEnrollment(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Enrollment{}, ErrNotConfigured
	}
	if err != nil {
		return domain.Enrollment{}, storageErr("get enrollment", err)
	}
	if !enr.Usable() {
		return domain.Enrollment{}, ErrNotConfigured
	}
	return enr, nil
}

func outcomeFor(err error) string {
	switch KindOf(err) {
	case KindNone:
		return metricsx.OutcomeSuccess
	case KindInvalidCode:
		return metricsx.OutcomeInvalidCode
	case KindLockedOut:
		return metricsx.OutcomeLockedOut
	case KindNotConfigured:
		return metricsx.OutcomeNotConfigured
	default:
		return metricsx.OutcomeError
	}
}
