package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredential covers malformed, tampered and expired pending
	// credentials. Callers cannot tell these apart.
	ErrInvalidCredential  = errors.New("invalid or expired mfa token")
	ErrLockedOut          = errors.New("too many failed attempts, try again later")
	ErrNotConfigured      = errors.New("mfa not configured for this user")
	ErrInvalidCode        = errors.New("invalid code")
	ErrAlreadyEnabled     = errors.New("mfa already enabled for this user")
	ErrSetupNotInitiated  = errors.New("mfa setup not initiated")
	ErrStorageUnavailable = errors.New("mfa storage unavailable")
	ErrUnsupportedMethod  = errors.New("unsupported mfa method")
)

// InvalidCodeError is a failed login-time code check. errors.Is(err,
// ErrInvalidCode) holds.
type InvalidCodeError struct {
	RemainingAttempts int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.RemainingAttempts)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// LockedOutError carries the unlock time for callers configured to reveal
// it. errors.Is(err, ErrLockedOut) holds.
type LockedOutError struct {
	LockedUntil time.Time
}

func (e *LockedOutError) Error() string { return ErrLockedOut.Error() }

func (e *LockedOutError) Is(target error) bool { return target == ErrLockedOut }

// StorageError wraps a SecretStore or AttemptStore failure.
// errors.Is(err, ErrStorageUnavailable) holds and the driver error is
// reachable through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Kind classifies any error returned from this package so callers can
// switch over every outcome.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidCredential
	KindLockedOut
	KindNotConfigured
	KindInvalidCode
	KindAlreadyEnabled
	KindSetupNotInitiated
	KindStorageUnavailable
	KindUnsupportedMethod
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindInvalidCredential:  "invalid_credential",
	KindLockedOut:          "locked_out",
	KindNotConfigured:      "not_configured",
	KindInvalidCode:        "invalid_code",
	KindAlreadyEnabled:     "already_enabled",
	KindSetupNotInitiated:  "setup_not_initiated",
	KindStorageUnavailable: "storage_unavailable",
	KindUnsupportedMethod:  "unsupported_method",
	KindInternal:           "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCredential):
		return KindInvalidCredential
	case errors.Is(err, ErrLockedOut):
		return KindLockedOut
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrInvalidCode):
		return KindInvalidCode
	case errors.Is(err, ErrAlreadyEnabled):
		return KindAlreadyEnabled
	case errors.Is(err, ErrSetupNotInitiated):
		return KindSetupNotInitiated
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	case errors.Is(err, ErrUnsupportedMethod):
		return KindUnsupportedMethod
	default:
		return KindInternal
	}
}

// RemainingAttempts extracts the attempts left from an invalid-code error.
func RemainingAttempts(err error) (int, bool) {
	var ice *InvalidCodeError
	if errors.As(err, &ice) {
		return ice.RemainingAttempts, true
	}
	return 0, false
}
