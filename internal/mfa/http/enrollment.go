package http

import (
	"net/http"

	"github.com/aussiebroadwan/twofactor/internal/mfa/service"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/mfasdk"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// EnrollmentHandler serves the account-settings endpoints. Every route sits
// behind AuthnMiddleware.
type EnrollmentHandler struct {
	EnrollmentService *service.EnrollmentService
	ClientIP          *httpx.ClientIP
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Begin TOTP setup
//	@Description	Generates a new TOTP secret and a batch of backup codes for the authenticated user. Restarting setup replaces any unconfirmed secret.
//	@Tags			Enrollment
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	mfasdk.EnrollResponse	"Secret, provisioning URI, QR code and backup codes (shown once)"
//	@Failure		401	{object}	mfasdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		409	{object}	mfasdk.ErrorResponse	"MFA already enabled"
//	@Failure		503	{object}	mfasdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *EnrollmentHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	setup, err := h.EnrollmentService.BeginSetup(ctx, userID, httpx.EmailFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.EnrollResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		QRCodePNG:       setup.QRCodePNG,
		Issuer:          setup.Issuer,
		Account:         setup.Account,
		BackupCodes:     setup.BackupCodes,
	})
}

// HandleConfirm handles POST /v1/mfa/totp/confirm
//
//	@Summary		Confirm TOTP setup
//	@Description	Enables MFA once the user proves their authenticator produces valid codes.
//	@Tags			Enrollment
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.CodeRequest		true	"Current TOTP code"
//	@Success		200		{object}	mfasdk.ConfirmResponse	"MFA enabled"
//	@Failure		400		{object}	mfasdk.ErrorResponse	"Invalid request"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid access token or code"
//	@Failure		409		{object}	mfasdk.ErrorResponse	"Setup not started, or already enabled"
//	@Failure		503		{object}	mfasdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/mfa/totp/confirm [post].
func (h *EnrollmentHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req mfasdk.CodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conf, err := h.EnrollmentService.ConfirmSetup(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("mfa enabled")
	httpx.WriteJSON(w, http.StatusOK, mfasdk.ConfirmResponse{
		Enabled:   conf.Enabled,
		EnabledAt: conf.EnabledAt,
	})
}

// HandleStatus handles GET /v1/mfa/status
//
//	@Summary		MFA status
//	@Description	Reports the enrollment state and how many backup codes are left.
//	@Tags			Enrollment
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	mfasdk.StatusResponse	"Enrollment state"
//	@Failure		401	{object}	mfasdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		503	{object}	mfasdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/mfa/status [get].
func (h *EnrollmentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	st, err := h.EnrollmentService.Status(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.StatusResponse{
		State:                string(st.State),
		EnabledAt:            st.EnabledAt,
		RemainingBackupCodes: st.RemainingBackupCodes,
	})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code with a fresh batch. Requires a current TOTP code; failures count towards the lockout.
//	@Tags			Enrollment
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.CodeRequest			true	"Current TOTP code"
//	@Success		200		{object}	mfasdk.BackupCodesResponse	"New backup codes (shown once)"
//	@Failure		400		{object}	mfasdk.ErrorResponse		"Invalid request"
//	@Failure		401		{object}	mfasdk.ErrorResponse		"Invalid access token or code"
//	@Failure		409		{object}	mfasdk.ErrorResponse		"MFA not enabled"
//	@Failure		429		{object}	mfasdk.ErrorResponse		"Too many failed attempts"
//	@Failure		503		{object}	mfasdk.ErrorResponse		"Storage unavailable"
//	@Router			/v1/mfa/backup-codes [post].
func (h *EnrollmentHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req mfasdk.CodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	codes, err := h.EnrollmentService.RegenerateBackupCodes(ctx, userID, req.Code, requestMeta(r, h.ClientIP))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.BackupCodesResponse{Codes: codes})
}

// HandleDisable handles DELETE /v1/mfa/totp
//
//	@Summary		Disable MFA
//	@Description	Removes the TOTP secret and all backup codes. Requires a current TOTP code; failures count towards the lockout.
//	@Tags			Enrollment
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	mfasdk.CodeRequest	true	"Current TOTP code"
//	@Success		204		"MFA disabled"
//	@Failure		400		{object}	mfasdk.ErrorResponse	"Invalid request"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid access token or code"
//	@Failure		409		{object}	mfasdk.ErrorResponse	"MFA not enabled"
//	@Failure		429		{object}	mfasdk.ErrorResponse	"Too many failed attempts"
//	@Failure		503		{object}	mfasdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/mfa/totp [delete].
func (h *EnrollmentHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		mfasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req mfasdk.CodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.EnrollmentService.Disable(ctx, userID, req.Code, requestMeta(r, h.ClientIP)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("mfa disabled")
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
