package mfasdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/twofactor/pkg/httpx"
)

// Challenge asks the service whether userID must complete a second factor.
// Users without MFA enabled get an *APIError with ErrorCodeMFANotConfigured.
func (c *SDKClient) Challenge(ctx context.Context, serviceToken, userID, email string) (*ChallengeResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/challenge",
		ChallengeRequest{UserID: userID, Email: email},
		map[string]string{httpx.ServiceTokenHeader: serviceToken},
	)
	if err != nil {
		return nil, err
	}

	var out ChallengeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify redeems a pending token with a TOTP or backup code.
func (c *SDKClient) Verify(ctx context.Context, mfaToken, method, code string) (*VerifyResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/verify",
		VerifyRequest{MFAToken: mfaToken, Method: method, Code: code}, nil)
	if err != nil {
		return nil, err
	}

	var out VerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll starts (or restarts) TOTP setup for the bearer of accessToken.
func (c *SDKClient) Enroll(ctx context.Context, accessToken string) (*EnrollResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/enroll", nil, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var out EnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm enables MFA with the first code from the authenticator app.
func (c *SDKClient) Confirm(ctx context.Context, accessToken, code string) (*ConfirmResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/confirm", CodeRequest{Code: code}, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var out ConfirmResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) Status(ctx context.Context, accessToken string) (*StatusResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/mfa/status", nil, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegenerateBackupCodes replaces the whole batch. A current TOTP code is required.
func (c *SDKClient) RegenerateBackupCodes(ctx context.Context, accessToken, code string) ([]string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/mfa/backup-codes", CodeRequest{Code: code}, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var out BackupCodesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

// Disable removes the enrollment and all backup codes. A current TOTP code is required.
func (c *SDKClient) Disable(ctx context.Context, accessToken, code string) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/v1/mfa/totp", CodeRequest{Code: code}, bearer(accessToken))
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
