// Package redis provides a shared AttemptStore so lockout state is
// consistent across service instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
)

// incrementScript applies one failure atomically. It mirrors
// domain.AttemptRecord.ApplyFailure: the lock is only set when the
// threshold is reached and no lock is active. Once the threshold is reached
// the key stops expiring; only Clear resets the count.
//
// KEYS[1] attempt hash
// ARGV    now_ms, max_attempts, lockout_ms, ttl_ms
// returns {count, locked_until_ms, newly_locked}
var incrementScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('HSET', KEYS[1], 'last_failure', now)

local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
local newly = 0
if count >= max and locked <= now then
	locked = now + lockout
	redis.call('HSET', KEYS[1], 'locked_until', locked)
	newly = 1
end

if count >= max then
	redis.call('PERSIST', KEYS[1])
elseif ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end

return {count, locked, newly}
`)

type AttemptStoreConfig struct {
	KeyPrefix string
	// TTL is refreshed on each failure below the threshold; idle records
	// that never locked expire on their own.
	TTL time.Duration
}

// AttemptStore persists attempt records as Redis hashes.
type AttemptStore struct {
	client *redis.Client
	cfg    AttemptStoreConfig
}

func NewAttemptStore(client *redis.Client, cfg AttemptStoreConfig) *AttemptStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mfa:attempts"
	}
	return &AttemptStore{client: client, cfg: cfg}
}

func (s *AttemptStore) Get(ctx context.Context, userID string) (domain.AttemptRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("redis hgetall: %w", err)
	}

	rec := domain.AttemptRecord{UserID: userID}
	if len(values) == 0 {
		return rec, nil
	}

	count, err := parseInt(values["count"])
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("parse count: %w", err)
	}
	lockedUntil, err := parseInt(values["locked_until"])
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("parse locked_until: %w", err)
	}
	lastFailure, err := parseInt(values["last_failure"])
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("parse last_failure: %w", err)
	}

	rec.FailureCount = int(count)
	rec.LockedUntil = millisPtr(lockedUntil)
	if lastFailure > 0 {
		rec.LastFailureAt = time.UnixMilli(lastFailure)
	}
	return rec, nil
}

func (s *AttemptStore) Increment(
	ctx context.Context,
	userID string,
	policy domain.LockoutPolicy,
	now time.Time,
) (domain.AttemptRecord, bool, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(userID)},
		now.UnixMilli(),
		policy.MaxAttempts,
		policy.LockoutDuration.Milliseconds(),
		s.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.AttemptRecord{}, false, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 3 {
		return domain.AttemptRecord{}, false, errors.New("redis increment: unexpected reply")
	}

	rec := domain.AttemptRecord{
		UserID:        userID,
		FailureCount:  int(res[0]),
		LockedUntil:   millisPtr(res[1]),
		LastFailureAt: time.UnixMilli(now.UnixMilli()),
	}
	return rec, res[2] == 1, nil
}

func (s *AttemptStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteStale is a no-op; records below the threshold expire through their TTL.
func (s *AttemptStore) DeleteStale(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *AttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *AttemptStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, userID)
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func millisPtr(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

var _ store.AttemptStore = (*AttemptStore)(nil)
