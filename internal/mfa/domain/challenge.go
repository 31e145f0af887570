package domain

// Identity is the user bound to a pending credential or verified factor.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Wire names for the second factor, as accepted on the verify endpoint.
const (
	MethodNameTOTP       = "totp"
	MethodNameBackupCode = "backup_code"
)

// Challenge is handed back to the primary-login caller when the user has an
// enabled enrollment.
type Challenge struct {
	MFARequired bool     `json:"mfa_required"` // always true
	MFAToken    string   `json:"mfa_token"`    // signed pending credential
	Methods     []string `json:"methods"`
	ExpiresIn   int      `json:"expires_in"` // seconds
}

// Verification is the outcome of a successful second-factor check.
type Verification struct {
	Identity
	Method               Method `json:"method"`
	RemainingBackupCodes *int   `json:"remaining_backup_codes,omitempty"`
}
