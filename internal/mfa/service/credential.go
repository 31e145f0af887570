package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const (
	// CredentialPrefix marks pending credentials in logs and support
	// tickets. It carries no security meaning and may be stripped.
	CredentialPrefix = "mfa_"

	// DefaultCredentialTTL bounds a single login round-trip.
	DefaultCredentialTTL = 5 * time.Minute

	credentialAudience = "mfa-pending"
	minSecretLength    = 32
)

// pendingClaims is the payload segment of a pending credential.
type pendingClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// CredentialCodec issues and validates short-lived HS256 credentials that
// bridge primary login and second-factor verification. It is stateless and
// does not enforce single use.
type CredentialCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewCredentialCodec builds a codec. The secret must be at least 32 bytes
// and must not be shared with any other token signer.
func NewCredentialCodec(secret []byte, ttl time.Duration, issuer string) (*CredentialCodec, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("mfa token secret must be at least %d bytes, got %d", minSecretLength, len(secret))
	}
	return &CredentialCodec{
		secret: secret,
		ttl:    ttl,
		issuer: issuer,
		Now:    time.Now,
	}, nil
}

func (c *CredentialCodec) TTL() time.Duration { return c.ttl }

// Issue returns "mfa_" + header.payload.signature. A TTL of zero or less
// yields a credential that is already expired.
func (c *CredentialCodec) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("issue mfa token: empty user id")
	}

	now := c.Now()
	claims := pendingClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{credentialAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign mfa token: %w", err)
	}
	return CredentialPrefix + signed, nil
}

// Validate checks structure, signature and expiry. Every failure is reported
// as ErrInvalidCredential; the specific reason is only logged at debug.
func (c *CredentialCodec) Validate(ctx context.Context, credential string) (domain.Identity, error) {
	l := slogx.FromContext(ctx)

	raw := strings.TrimPrefix(strings.TrimSpace(credential), CredentialPrefix)
	if strings.Count(raw, ".") != 2 {
		l.Debug("mfa token rejected", "reason", "malformed")
		return domain.Identity{}, ErrInvalidCredential
	}

	var claims pendingClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(credentialAudience),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.Now),
	)
	if err != nil {
		l.Debug("mfa token rejected",
			"reason", rejectReason(err),
			"token_fp", cryptox.FingerprintToken(raw),
		)
		return domain.Identity{}, ErrInvalidCredential
	}

	if claims.Subject == "" {
		l.Debug("mfa token rejected", "reason", "missing subject")
		return domain.Identity{}, ErrInvalidCredential
	}

	return domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "claims"
	}
}
