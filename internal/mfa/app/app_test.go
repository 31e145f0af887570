package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/jwtx"
	"github.com/aussiebroadwan/twofactor/pkg/mfasdk"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	cfg := validConfig()
	cfg.DatabaseFile = filepath.Join(dir, "mfa.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.LogLevel = "error"
	cfg.LogFormat = "text"
	cfg.Port = 0
	return cfg
}

func serve(app *Application, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxAttempts = 0

	app, err := New(cfg)
	require.Error(t, err)
	require.Nil(t, app)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.AttemptStore = AttemptStoreRedis
	cfg.RedisAddr = addr

	app, err := New(cfg)
	require.Error(t, err)
	require.Nil(t, app)
	require.Contains(t, err.Error(), "redis")
}

func TestApplication_ServesWithRedisAttemptStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.AttemptStore = AttemptStoreRedis
	cfg.RedisAddr = mr.Addr()

	app, err := New(cfg)
	require.NoError(t, err)

	rec := serve(app, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var health mfasdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, BuildVersion, health.Version)

	rec = serve(app, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")

	app.housekeepingService.Start()
	require.NoError(t, app.Shutdown())
}

func TestApplication_ChallengeRequiresServiceToken(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		app.housekeepingService.Start()
		_ = app.Shutdown()
	})

	body := `{"user_id":"user-1"}`

	rec := serve(app, http.MethodPost, "/v1/mfa/challenge", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(app, http.MethodPost, "/v1/mfa/challenge", body, map[string]string{
		httpx.ServiceTokenHeader: app.cfg.ServiceToken,
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), mfasdk.ErrorCodeMFANotConfigured)
}

func TestApplication_AccessTokenChecks(t *testing.T) {
	cfg := testConfig(t)
	cfg.AccessTokenIssuer = "host-app"
	cfg.AccessTokenAudience = []string{"web"}

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		app.housekeepingService.Start()
		_ = app.Shutdown()
	})

	signer, err := jwtx.NewSignerHS256([]byte(cfg.AccessTokenSecret))
	require.NoError(t, err)

	sign := func(issuer string, aud []string) map[string]string {
		tok, err := signer.Sign(jwtx.NewAccessClaims("user-1", "user@example.com", []string{"pwd"},
			time.Minute, issuer, aud, time.Now()))
		require.NoError(t, err)
		return map[string]string{"Authorization": "Bearer " + tok}
	}

	rec := serve(app, http.MethodGet, "/v1/mfa/status", "", sign("host-app", []string{"web"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(app, http.MethodGet, "/v1/mfa/status", "", sign("someone-else", []string{"web"}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(app, http.MethodGet, "/v1/mfa/status", "", sign("host-app", []string{"mobile"}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplication_TrustedProxyForwarding(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustedProxies = []string{"192.0.2.0/24"} // httptest's default peer

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		app.housekeepingService.Start()
		_ = app.Shutdown()
	})

	body := `{"mfa_token":"mfa_garbage","code":"123456"}`
	for i := range httpx.ModerateLimit.Burst {
		rec := serve(app, http.MethodPost, "/v1/mfa/verify", body, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i),
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	}

	// Behind a trusted proxy each forwarded client has its own bucket.
	rec := serve(app, http.MethodPost, "/v1/mfa/verify", body, map[string]string{
		"X-Forwarded-For": "203.0.113.0",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
