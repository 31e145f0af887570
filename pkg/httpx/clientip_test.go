package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClientIP(t *testing.T) {
	c, err := NewClientIP([]string{"10.0.0.0/8", " 172.16.0.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, c.trusted, 3)

	_, err = NewClientIP([]string{"10.0.0.0/33"})
	require.Error(t, err)
	_, err = NewClientIP([]string{"proxy.internal"})
	require.Error(t, err)
}

func TestClientIP_Extract(t *testing.T) {
	proxies, err := NewClientIP([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		c       *ClientIP
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies ignores forwarded", nil, "198.51.100.9:1", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.9"},
		{"untrusted peer ignores forwarded", proxies, "198.51.100.9:1", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.9"},
		{"untrusted peer ignores real ip", proxies, "198.51.100.9:1", map[string]string{"X-Real-IP": "203.0.113.2"}, "198.51.100.9"},
		{"trusted peer, single hop", proxies, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"rightmost untrusted hop wins", proxies, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.1, 10.0.0.7"}, "203.0.113.1"},
		{"all hops trusted", proxies, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.7"}, "10.0.0.5"},
		{"malformed hop stops the walk", proxies, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.1, junk"}, "10.0.0.1"},
		{"real ip behind proxy", proxies, "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{"bad real ip", proxies, "10.0.0.1:1", map[string]string{"X-Real-IP": "nope"}, "10.0.0.1"},
		{"no headers", proxies, "10.0.0.1:1", nil, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, tt.c.Extract(req))
		})
	}
}

func TestRateLimitByIP_ForwardedHeaderCannotRotateBuckets(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	var direct *ClientIP
	h := RateLimitByIP(cfg, direct.Extract)(okHandler())

	codes := make([]int, 0, 4)
	for i := range 4 {
		req := requestFrom("198.51.100.9:4242")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
