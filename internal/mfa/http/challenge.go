package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/service"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/mfasdk"
)

// ChallengeHandler serves the login-time endpoints.
type ChallengeHandler struct {
	ChallengeService *service.ChallengeService
	ClientIP         *httpx.ClientIP
}

// HandleChallenge handles POST /v1/mfa/challenge
//
//	@Summary		Request an MFA challenge
//	@Description	Called by the login service after a successful password check. Issues a short-lived pending mfa_token when the user has MFA enabled.
//	@Tags			Login
//	@Security		ServiceToken
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.ChallengeRequest		true	"User to challenge"
//	@Success		200		{object}	mfasdk.ChallengeResponse	"Pending token and allowed methods"
//	@Failure		400		{object}	mfasdk.ErrorResponse		"Invalid request"
//	@Failure		401		{object}	mfasdk.ErrorResponse		"Missing or invalid service token"
//	@Failure		409		{object}	mfasdk.ErrorResponse		"MFA not configured, proceed without a second factor"
//	@Failure		503		{object}	mfasdk.ErrorResponse		"Storage unavailable"
//	@Router			/v1/mfa/challenge [post].
func (h *ChallengeHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	var req mfasdk.ChallengeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		mfasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	ch, err := h.ChallengeService.Begin(r.Context(), req.UserID, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.ChallengeResponse{
		MFARequired: ch.MFARequired,
		MFAToken:    ch.MFAToken,
		Methods:     ch.Methods,
		ExpiresIn:   ch.ExpiresIn,
	})
}

// HandleVerify handles POST /v1/mfa/verify
//
//	@Summary		Complete an MFA challenge
//	@Description	Redeems a pending mfa_token with a TOTP code or a single-use backup code. Failed codes count towards a per-user lockout.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.VerifyRequest	true	"Pending token, method and code"
//	@Success		200		{object}	mfasdk.VerifyResponse	"Verified identity"
//	@Failure		400		{object}	mfasdk.ErrorResponse	"Invalid request or unsupported method"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid mfa_token, or invalid code with remaining_attempts"
//	@Failure		409		{object}	mfasdk.ErrorResponse	"MFA not configured"
//	@Failure		429		{object}	mfasdk.ErrorResponse	"Too many failed attempts"
//	@Failure		503		{object}	mfasdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/mfa/verify [post].
func (h *ChallengeHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req mfasdk.VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MFAToken == "" {
		mfasdk.ErrInvalidMFAToken.WriteError(w)
		return
	}

	v, err := h.ChallengeService.Complete(r.Context(), req.MFAToken, req.Method, req.Code, requestMeta(r, h.ClientIP))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.VerifyResponse{
		UserID:               v.UserID,
		Email:                v.Email,
		Method:               string(v.Method),
		RemainingBackupCodes: v.RemainingBackupCodes,
	})
}

// requestMeta is forwarded untouched to audit events.
func requestMeta(r *http.Request, ip *httpx.ClientIP) domain.RequestMeta {
	return domain.RequestMeta{
		IP:        ip.Extract(r),
		UserAgent: r.UserAgent(),
	}
}
