package service

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// ChallengeService bridges primary login and second-factor verification.
type ChallengeService struct {
	Codec  *CredentialCodec
	Store  store.Store
	TOTP   *TOTPVerifier
	Backup *BackupCodeVerifier
}

func NewChallengeService(codec *CredentialCodec, s store.Store, t *TOTPVerifier, b *BackupCodeVerifier) *ChallengeService {
	return &ChallengeService{Codec: codec, Store: s, TOTP: t, Backup: b}
}

// Begin issues a pending credential for a user who passed primary login.
// Users without an enabled enrollment get ErrNotConfigured and should be
// let through without a second factor.
func (s *ChallengeService) Begin(ctx context.Context, userID, email string) (domain.Challenge, error) {
	enr, err := loadUsableEnrollment(ctx, s.Store, userID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if email == "" {
		email = enr.Email
	}

	token, err := s.Codec.Issue(userID, email)
	if err != nil {
		return domain.Challenge{}, err
	}

	slogx.FromContext(ctx).Debug("mfa challenge issued",
		"user_id", userID,
		"token_fp", cryptox.FingerprintToken(token),
	)

	return domain.Challenge{
		MFARequired: true,
		MFAToken:    token,
		Methods:     []string{domain.MethodNameTOTP, domain.MethodNameBackupCode},
		ExpiresIn:   int(s.Codec.TTL().Seconds()),
	}, nil
}

// Complete validates the pending credential and checks the code with the
// requested method. The user is taken from the credential, never from the
// request body.
func (s *ChallengeService) Complete(
	ctx context.Context,
	token, method, code string,
	meta domain.RequestMeta,
) (domain.Verification, error) {
	id, err := s.Codec.Validate(ctx, token)
	if err != nil {
		return domain.Verification{}, err
	}

	ctx = slogx.With(ctx, "user_id", id.UserID)

	switch strings.ToLower(strings.TrimSpace(method)) {
	case domain.MethodNameTOTP, "":
		verified, err := s.TOTP.Verify(ctx, id.UserID, code, meta)
		if err != nil {
			return domain.Verification{}, err
		}
		if verified.Email == "" {
			verified.Email = id.Email
		}
		return domain.Verification{Identity: verified, Method: domain.MethodTOTP}, nil

	case domain.MethodNameBackupCode:
		v, err := s.Backup.Verify(ctx, id.UserID, code, meta)
		if err != nil {
			return domain.Verification{}, err
		}
		if v.Email == "" {
			v.Email = id.Email
		}
		return v, nil

	default:
		return domain.Verification{}, ErrUnsupportedMethod
	}
}
