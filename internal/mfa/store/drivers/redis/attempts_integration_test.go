//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a throwaway Redis and returns a connected client.
func setupRedisContainer(t *testing.T) *red.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := red.NewClient(&red.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAttemptStoreAgainstRealRedis(t *testing.T) {
	client := setupRedisContainer(t)
	s := NewAttemptStore(client, AttemptStoreConfig{KeyPrefix: "it", TTL: time.Minute})
	ctx := context.Background()
	now := time.Now()

	for range policy.MaxAttempts - 1 {
		_, locked, err := s.Increment(ctx, "alice", policy, now)
		require.NoError(t, err)
		require.False(t, locked)
	}
	rec, locked, err := s.Increment(ctx, "alice", policy, now)
	require.NoError(t, err)
	require.True(t, locked)
	require.True(t, rec.LockedAt(now))

	require.NoError(t, s.Clear(ctx, "alice"))
	rec, err = s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, rec.FailureCount)
}
