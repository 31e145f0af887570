package domain

import "time"

// EnrollmentState is the lifecycle position of a user's MFA enrollment.
type EnrollmentState string

const (
	StateNotEnrolled         EnrollmentState = "not_enrolled"
	StatePendingConfirmation EnrollmentState = "pending"
	StateEnabled             EnrollmentState = "enabled"
)

// Enrollment is the per-user MFA record. A nil EnabledAt means the
// enrollment is still waiting for its first successful code.
type Enrollment struct {
	UserID    string
	Email     string
	Secret    string // base32 TOTP secret
	EnabledAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Enrollment) State() EnrollmentState {
	switch {
	case e.UserID == "":
		return StateNotEnrolled
	case e.EnabledAt != nil:
		return StateEnabled
	default:
		return StatePendingConfirmation
	}
}

// Usable reports whether the enrollment may be used to complete a login.
func (e Enrollment) Usable() bool {
	return e.State() == StateEnabled && e.Secret != ""
}

// BackupCode is a single stored recovery code. Only the hash is persisted.
// Consumed codes are kept with ConsumedAt set.
type BackupCode struct {
	ID         string
	UserID     string
	CodeHash   string // argon2id PHC string
	Position   int
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (c BackupCode) Consumed() bool { return c.ConsumedAt != nil }

// SetupResponse is returned once from BeginSetup. The backup codes and
// secret are never retrievable again.
type SetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCodePNG       string   `json:"qr_code_png,omitempty"` // base64 PNG of ProvisioningURI
	Issuer          string   `json:"issuer"`
	Account         string   `json:"account"`
	BackupCodes     []string `json:"backup_codes"`
}

type SetupConfirmation struct {
	Enabled   bool      `json:"enabled"`
	EnabledAt time.Time `json:"enabled_at"`
}

// Status is the post-setup view of an enrollment. Backup codes are only
// exposed as a count.
type Status struct {
	State                EnrollmentState `json:"state"`
	EnabledAt            *time.Time      `json:"enabled_at,omitempty"`
	RemainingBackupCodes int             `json:"remaining_backup_codes"`
}
