package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/mfasdk"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"

	// readyTimeout bounds each dependency ping.
	readyTimeout = 2 * time.Second
)

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Returns 200 while the process is serving. Storage is not checked.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, mfasdk.HealthResponse{
			Status:  statusOK,
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Pings the enrollment database and the attempt store. Any failure answers 503 so the instance is taken out of rotation; verification cannot run safely without both.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	mfasdk.HealthResponse	"one or more dependencies unavailable"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	attempts store.AttemptStore,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &mfasdk.HealthChecks{
			Database:     ping(r.Context(), "database", st.Ping),
			AttemptStore: ping(r.Context(), "attempt_store", attempts.Ping),
		}

		status, code := statusOK, http.StatusOK
		if checks.Database != statusOK || checks.AttemptStore != statusOK {
			status, code = statusDegraded, http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, mfasdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// ping reports "ok" or "unavailable". The cause is logged, never returned.
func ping(ctx context.Context, name string, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		slogx.FromContext(ctx).Error("readiness check failed", "check", name, "err", err)
		return statusUnavailable
	}
	return statusOK
}
