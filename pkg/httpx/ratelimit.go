package httpx

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill per Window,
// at most Burst stored.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// refillTime is how long an untouched bucket takes to fill up again. A key
// idle for longer can be forgotten without changing any decision.
func (c RateLimitConfig) refillTime() time.Duration {
	return time.Duration(float64(c.Burst) / float64(c.limit()) * float64(time.Second))
}

// Route profiles. Each can be overridden with RATELIMIT_<NAME>_REQUESTS,
// RATELIMIT_<NAME>_WINDOW_SEC and RATELIMIT_<NAME>_BURST.
var (
	// StrictLimit guards setup confirmation, where every request is a guess.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit covers code verification and settings changes. The
	// attempt ledger bounds guesses per user, this bounds them per caller.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit covers challenges from the login service, status reads
	// and probes.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
}

// ParseRateLimitFromEnv overlays RATELIMIT_<prefix>_* variables on def.
// Missing, malformed and non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnvInt(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// KeyExtractor groups requests into buckets. An empty key skips limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the socket peer address. Use ClientIP.Extract
// when the service sits behind proxies.
func IPKeyExtractor(r *http.Request) string {
	return peerAddr(r)
}

// UserIDKeyExtractor keys on the authenticated subject.
func UserIDKeyExtractor(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// HeaderKeyExtractor keys on a request header. Values are fingerprinted so
// secrets never sit in the limiter map.
func HeaderKeyExtractor(header string) KeyExtractor {
	return func(r *http.Request) string {
		v := strings.TrimSpace(r.Header.Get(header))
		if v == "" {
			return ""
		}
		return cryptox.FingerprintToken(v)
	}
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter holds one token bucket per key and forgets buckets that have
// been idle long enough to be full again.
type keyedLimiter struct {
	cfg     RateLimitConfig
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newKeyedLimiter(cfg RateLimitConfig, now func() time.Time) *keyedLimiter {
	return &keyedLimiter{
		cfg:       cfg,
		idleTTL:   max(cfg.refillTime(), time.Second),
		now:       now,
		buckets:   make(map[string]*bucket),
		lastSweep: now(),
	}
}

// take consumes one token for key, or reports how long until one is free.
func (kl *keyedLimiter) take(key string) (bool, time.Duration) {
	now := kl.now()

	kl.mu.Lock()
	defer kl.mu.Unlock()

	if now.Sub(kl.lastSweep) >= kl.idleTTL {
		for k, b := range kl.buckets {
			if now.Sub(b.lastSeen) >= kl.idleTTL {
				delete(kl.buckets, k)
			}
		}
		kl.lastSweep = now
	}

	b, ok := kl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(kl.cfg.limit(), kl.cfg.Burst)}
		kl.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (kl *keyedLimiter) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}

// RateLimitMiddleware rejects requests with 429 once the bucket for their
// key is empty. Every call builds its own set of buckets.
func RateLimitMiddleware(cfg RateLimitConfig, keyFn KeyExtractor) Middleware {
	return rateLimit(newKeyedLimiter(cfg, time.Now), keyFn)
}

func rateLimit(kl *keyedLimiter, keyFn KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := kl.take(key)
			if !ok {
				retryAfter := max(int(wait.Round(time.Second)/time.Second), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(kl.cfg.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", kl.cfg.Window.String())

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					"too many requests, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits per client address as resolved by ip.
func RateLimitByIP(cfg RateLimitConfig, ip KeyExtractor) Middleware {
	return RateLimitMiddleware(cfg, ip)
}

// RateLimitByUser limits per authenticated user and address. Mount it after
// AuthnMiddleware.
func RateLimitByUser(cfg RateLimitConfig, ip KeyExtractor) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", UserIDKeyExtractor, ip))
}

// RateLimitByIPAndHeader limits per address and header fingerprint, so
// trusted callers sharing an egress address do not starve each other.
func RateLimitByIPAndHeader(cfg RateLimitConfig, ip KeyExtractor, header string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", ip, HeaderKeyExtractor(header)))
}
