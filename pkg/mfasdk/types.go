package mfasdk

import "time"

// Method names accepted by the verify endpoint.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse is the JSON body of every error response.
// Client code should use the APIError type from errors.go instead.
type ErrorResponse struct {
	Error             string     `json:"error"`
	ErrorDescription  string     `json:"error_description,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// ============================================================================
// Login Types
// ============================================================================

// ChallengeRequest is sent by the login service once the password step has
// succeeded.
type ChallengeRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// ChallengeResponse carries the pending token the user must redeem.
type ChallengeResponse struct {
	MFARequired bool     `json:"mfa_required"`
	MFAToken    string   `json:"mfa_token"`
	Methods     []string `json:"methods"`

	// ExpiresIn is the lifetime of MFAToken in seconds
	ExpiresIn int `json:"expires_in"`
}

// VerifyRequest completes a challenge. Method defaults to totp.
type VerifyRequest struct {
	MFAToken string `json:"mfa_token"`
	Method   string `json:"method,omitempty"`
	Code     string `json:"code"`
}

// VerifyResponse is the verified identity.
type VerifyResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`

	// Method is TOTP or BACKUP_CODE
	Method string `json:"method"`

	// RemainingBackupCodes is only set when a backup code was used
	RemainingBackupCodes *int `json:"remaining_backup_codes,omitempty"`
}

// ============================================================================
// Enrollment Types
// ============================================================================

// EnrollResponse is returned once, when setup begins. Nothing in it can be
// retrieved again.
type EnrollResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCodePNG       string   `json:"qr_code_png,omitempty"`
	Issuer          string   `json:"issuer"`
	Account         string   `json:"account"`
	BackupCodes     []string `json:"backup_codes"`
}

// CodeRequest carries a TOTP code for confirm, regenerate and disable.
type CodeRequest struct {
	Code string `json:"code"`
}

type ConfirmResponse struct {
	Enabled   bool      `json:"enabled"`
	EnabledAt time.Time `json:"enabled_at"`
}

type StatusResponse struct {
	// State is not_enrolled, pending or enabled
	State                string     `json:"state"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
}

type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the secret store connection status
	Database string `json:"database"`

	// AttemptStore indicates the failure ledger backend status
	AttemptStore string `json:"attempt_store"`
}
