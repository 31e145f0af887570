package app

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
)

const minSecretLen = 32

// Audit sink names accepted in MFA_AUDIT_SINKS.
const (
	SinkLog   = "log"
	SinkDB    = "db"
	SinkKafka = "kafka"
)

// Attempt store backends accepted in MFA_ATTEMPT_STORE.
const (
	AttemptStoreMemory = "memory"
	AttemptStoreRedis  = "redis"
)

type Config struct {
	Issuer              string        // Provisioning URI issuer label (default: bartab)
	TokenSecret         string        // HMAC key for pending mfa tokens (random per process in dev)
	TokenTTL            time.Duration // Pending token lifetime (default: 5m)
	MaxAttempts         int           // Failures before lockout (default: 5)
	LockoutDuration     time.Duration // Lockout window (default: 15m)
	RevealLockoutExpiry bool          // Include locked_until in 429 responses (default: false)
	BackupCodeCount     int           // Codes per batch (default: 10)
	BackupCodeLength    int           // Characters per code (default: 8)

	AttemptStore  string // memory or redis (default: memory)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditSinks      []string      // Any of log, db, kafka (default: log,db)
	AuditRetention  time.Duration // Zero keeps audit events forever
	KafkaBrokers    []string
	KafkaAuditTopic string // (default: mfa.audit)

	AccessTokenSecret   string   // HS256 key of the host application's access tokens
	AccessTokenIssuer   string   // Optional: required iss of access tokens
	AccessTokenAudience []string // Optional: accepted aud values of access tokens
	ServiceToken        string   // Shared secret the login service presents for challenges
	TrustedProxies      []string // CIDRs or addresses whose X-Forwarded-For is honoured (default: none)

	DatabaseFile         string        // Path to SQLite database file (default: ./mfa.db)
	PepperFile           string        // Path to backup-code hash pepper (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:              getEnvOrDefault("MFA_ISSUER", "bartab"),
		TokenSecret:         os.Getenv("MFA_TOKEN_SECRET"),
		TokenTTL:            getEnvDurationOrDefault("MFA_TOKEN_TTL", 5*time.Minute),
		MaxAttempts:         getEnvIntOrDefault("MFA_MAX_ATTEMPTS", 5),
		LockoutDuration:     getEnvDurationOrDefault("MFA_LOCKOUT_DURATION", 15*time.Minute),
		RevealLockoutExpiry: getEnvBoolOrDefault("MFA_REVEAL_LOCKOUT_EXPIRY", false),
		BackupCodeCount:     getEnvIntOrDefault("MFA_BACKUP_CODE_COUNT", 10),
		BackupCodeLength:    getEnvIntOrDefault("MFA_BACKUP_CODE_LENGTH", 8),

		AttemptStore:  strings.ToLower(getEnvOrDefault("MFA_ATTEMPT_STORE", AttemptStoreMemory)),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		AuditSinks:      getEnvListOrDefault("MFA_AUDIT_SINKS", []string{SinkLog, SinkDB}),
		AuditRetention:  getEnvDurationOrDefault("MFA_AUDIT_RETENTION", 0),
		KafkaBrokers:    getEnvListOrDefault("KAFKA_BROKERS", nil),
		KafkaAuditTopic: getEnvOrDefault("KAFKA_AUDIT_TOPIC", "mfa.audit"),

		AccessTokenSecret:   os.Getenv("ACCESS_TOKEN_SECRET"),
		AccessTokenIssuer:   os.Getenv("ACCESS_TOKEN_ISSUER"),
		AccessTokenAudience: getEnvListOrDefault("ACCESS_TOKEN_AUDIENCE", nil),
		ServiceToken:        os.Getenv("SERVICE_TOKEN"),
		TrustedProxies:      getEnvListOrDefault("TRUSTED_PROXIES", nil),

		DatabaseFile:         getEnvOrDefault("DATABASE_FILE", "mfa.db"),
		PepperFile:           getEnvOrDefault("PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	for i, s := range cfg.AuditSinks {
		cfg.AuditSinks[i] = strings.ToLower(s)
	}

	// Dev gets throwaway secrets so the service starts with no setup.
	// Pending tokens do not survive a restart.
	if cfg.IsDev() {
		if cfg.TokenSecret == "" {
			cfg.TokenSecret = cryptox.MustGenerateToken(minSecretLen)
		}
		if cfg.AccessTokenSecret == "" {
			cfg.AccessTokenSecret = cryptox.MustGenerateToken(minSecretLen)
		}
	}

	return cfg
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.TokenSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("MFA_TOKEN_SECRET must be at least %d bytes", minSecretLen))
	}
	if len(c.AccessTokenSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.TokenSecret != "" && c.TokenSecret == c.AccessTokenSecret {
		errs = append(errs, errors.New("MFA_TOKEN_SECRET must differ from ACCESS_TOKEN_SECRET"))
	}
	if c.ServiceToken == "" && !c.IsDev() {
		errs = append(errs, errors.New("SERVICE_TOKEN is required outside dev"))
	}

	if _, err := httpx.NewClientIP(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("MFA_TOKEN_TTL must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("MFA_MAX_ATTEMPTS must be at least 1"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("MFA_LOCKOUT_DURATION must be positive"))
	}
	if c.BackupCodeCount < 1 {
		errs = append(errs, errors.New("MFA_BACKUP_CODE_COUNT must be at least 1"))
	}
	if c.BackupCodeLength < 6 {
		errs = append(errs, errors.New("MFA_BACKUP_CODE_LENGTH must be at least 6"))
	}

	switch c.AttemptStore {
	case AttemptStoreMemory:
	case AttemptStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when MFA_ATTEMPT_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MFA_ATTEMPT_STORE %q", c.AttemptStore))
	}

	for _, s := range c.AuditSinks {
		if !slices.Contains([]string{SinkLog, SinkDB, SinkKafka}, s) {
			errs = append(errs, fmt.Errorf("unknown audit sink %q", s))
		}
	}
	if c.HasSink(SinkKafka) && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka audit sink"))
	}
	if c.AuditRetention < 0 {
		errs = append(errs, errors.New("MFA_AUDIT_RETENTION must not be negative"))
	}

	return errors.Join(errs...)
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.AuditSinks, name)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
