package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// BackupCodeVerifier redeems single-use recovery codes. A redeemed code is
// marked consumed and kept, never deleted.
type BackupCodeVerifier struct {
	Store   store.Store
	Ledger  *Ledger
	Audit   *AuditRecorder
	Metrics *metricsx.MFA
	Now     func() time.Time
}

func NewBackupCodeVerifier(s store.Store, ledger *Ledger, audit *AuditRecorder, m *metricsx.MFA) *BackupCodeVerifier {
	return &BackupCodeVerifier{
		Store:   s,
		Ledger:  ledger,
		Audit:   audit,
		Metrics: m,
		Now:     time.Now,
	}
}

// Verify consumes the matching backup code and reports how many remain.
// Running out of codes is indistinguishable from submitting a wrong one.
func (v *BackupCodeVerifier) Verify(ctx context.Context, userID, code string, meta domain.RequestMeta) (domain.Verification, error) {
	l := slogx.FromContext(ctx).With("user_id", userID, "method", domain.MethodBackupCode)
	method := string(domain.MethodBackupCode)

	if err := v.Ledger.guard(ctx, userID); err != nil {
		v.Metrics.ObserveVerification(method, outcomeFor(err))
		return domain.Verification{}, err
	}

	enr, err := loadUsableEnrollment(ctx, v.Store, userID)
	if err != nil {
		v.Metrics.ObserveVerification(method, outcomeFor(err))
		return domain.Verification{}, err
	}

	matched, err := v.redeem(ctx, userID, cryptox.NormalizeBackupCode(code))
	if err != nil {
		v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
		return domain.Verification{}, err
	}

	if !matched {
		rec, err := v.Ledger.RecordFailure(ctx, userID, domain.MethodBackupCode, meta)
		if err != nil {
			v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
			return domain.Verification{}, err
		}
		v.Audit.Record(ctx, loginFailed(userID, domain.MethodBackupCode, meta))
		v.Metrics.ObserveVerification(method, metricsx.OutcomeInvalidCode)

		remaining := rec.Remaining(v.Ledger.Policy)
		l.Info("backup code rejected", "remaining_attempts", remaining)
		return domain.Verification{}, &InvalidCodeError{RemainingAttempts: remaining}
	}

	left, err := v.Store.BackupCodes().CountUnconsumedBackupCodes(ctx, userID)
	if err != nil {
		v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
		return domain.Verification{}, storageErr("count backup codes", err)
	}

	if err := v.Ledger.Clear(ctx, userID); err != nil {
		v.Metrics.ObserveVerification(method, metricsx.OutcomeError)
		return domain.Verification{}, err
	}
	v.Audit.Record(ctx, loginSuccess(userID, domain.MethodBackupCode, meta, &left))
	v.Metrics.ObserveVerification(method, metricsx.OutcomeSuccess)

	if left == 0 {
		l.Warn("user has consumed their last backup code")
	}

	return domain.Verification{
		Identity:             domain.Identity{UserID: enr.UserID, Email: enr.Email},
		Method:               domain.MethodBackupCode,
		RemainingBackupCodes: &left,
	}, nil
}

// redeem looks for an unconsumed code matching plaintext and consumes it. A
// code consumed by a concurrent request between the read and the update
// counts as no match.
func (v *BackupCodeVerifier) redeem(ctx context.Context, userID, plaintext string) (bool, error) {
	l := slogx.FromContext(ctx)

	codes, err := v.Store.BackupCodes().ListUnconsumedBackupCodes(ctx, userID)
	if err != nil {
		return false, storageErr("list backup codes", err)
	}
	if len(codes) == 0 {
		l.Info("backup code submitted with none remaining", "user_id", userID)
		return false, nil
	}
	if plaintext == "" {
		return false, nil
	}

	for _, c := range codes {
		err := cryptox.VerifySecret(plaintext, c.CodeHash)
		if errors.Is(err, cryptox.ErrHashMismatch) {
			continue
		}
		if err != nil {
			l.Error("stored backup code hash is unreadable", "code_id", c.ID, "error", err)
			continue
		}

		err = v.Store.BackupCodes().ConsumeBackupCode(ctx, c.ID, v.Now().UTC())
		if errors.Is(err, store.ErrNotFound) {
			l.Info("backup code consumed concurrently", "user_id", userID, "code_id", c.ID)
			return false, nil
		}
		if err != nil {
			return false, storageErr("consume backup code", err)
		}
		return true, nil
	}

	return false, nil
}
