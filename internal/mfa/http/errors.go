package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/twofactor/internal/mfa/service"
	"github.com/aussiebroadwan/twofactor/pkg/mfasdk"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const maxBodyBytes = 16 << 10

// writeServiceError maps a service error onto its HTTP response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch service.KindOf(err) {
	case service.KindInvalidCredential:
		mfasdk.ErrInvalidMFAToken.WriteError(w)
	case service.KindLockedOut:
		var lo *service.LockedOutError
		if errors.As(err, &lo) && !lo.LockedUntil.IsZero() {
			mfasdk.ErrTooManyAttempts.WithLockedUntil(lo.LockedUntil).WriteError(w)
			return
		}
		mfasdk.ErrTooManyAttempts.WriteError(w)
	case service.KindNotConfigured:
		mfasdk.ErrMFANotConfigured.WriteError(w)
	case service.KindInvalidCode:
		if n, ok := service.RemainingAttempts(err); ok {
			mfasdk.ErrInvalidCode.WithRemainingAttempts(n).WriteError(w)
			return
		}
		mfasdk.ErrInvalidCode.WriteError(w)
	case service.KindAlreadyEnabled:
		mfasdk.ErrMFAAlreadyEnabled.WriteError(w)
	case service.KindSetupNotInitiated:
		mfasdk.ErrSetupNotInitiated.WriteError(w)
	case service.KindUnsupportedMethod:
		mfasdk.ErrUnsupportedMethod.WriteError(w)
	case service.KindStorageUnavailable:
		log.Error("mfa storage unavailable", "err", err)
		mfasdk.ErrStorageUnavailable.WriteError(w)
	case service.KindNone, service.KindInternal:
		log.Error("mfa request failed", "err", err)
		mfasdk.ErrServerError.WriteError(w)
	}
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
		mfasdk.ErrInvalidRequest.WriteError(w)
		return false
	}
	return true
}
