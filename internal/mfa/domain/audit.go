package domain

import "time"

type AuditAction string

const (
	ActionLoginSuccess AuditAction = "MFA_LOGIN_SUCCESS"
	ActionLoginFailed  AuditAction = "MFA_LOGIN_FAILED"
	ActionLockout      AuditAction = "MFA_LOCKOUT"
)

type AuditLevel string

const (
	LevelInfo AuditLevel = "info"
	LevelWarn AuditLevel = "warn"
)

// Method is the second factor used for a verification.
type Method string

const (
	MethodTOTP       Method = "TOTP"
	MethodBackupCode Method = "BACKUP_CODE"
)

// RequestMeta is the caller-supplied request context forwarded into audit
// events. Nothing in the MFA core inspects it.
type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditDetails struct {
	Method               Method `json:"method"`
	RemainingBackupCodes *int   `json:"remainingBackupCodes,omitempty"`
}

type AuditEvent struct {
	ID         string       `json:"id"`
	Action     AuditAction  `json:"action"`
	UserID     string       `json:"userId"`
	Level      AuditLevel   `json:"level"`
	Details    AuditDetails `json:"details"`
	Meta       RequestMeta  `json:"meta"`
	OccurredAt time.Time    `json:"occurredAt"`
}
