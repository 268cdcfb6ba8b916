//go:build integration

package credential

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(connStr)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStoreContract(t *testing.T) {
	client := startRedis(t)
	exercisePersistence(t, NewRedisStore(client, "test:"+uuid.NewString()))
}

func TestRedisStoreExpiresCredentialWithToken(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := NewRedisStore(client, "ttl:"+uuid.NewString(), WithHandshakeTTL(time.Minute))

	cred := sampleCredential()
	cred.Claims.ExpiresAt = time.Now().Add(30 * time.Minute)
	require.NoError(t, store.Save(ctx, cred))

	ttl, err := client.TTL(ctx, store.credentialKey()).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 25*time.Minute)
	require.LessOrEqual(t, ttl, 30*time.Minute)

	require.NoError(t, store.SaveHandshake(ctx, Handshake{State: "s", Verifier: "v"}))
	ttl, err = client.TTL(ctx, store.handshakeKey()).Result()
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, time.Minute)

	expired := cred
	expired.Token = "expired-token"
	expired.Claims.ExpiresAt = time.Now().Add(-time.Minute)
	require.ErrorIs(t, store.Save(ctx, expired), ErrExpired)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cred.Token, loaded.Token, "a refused save leaves the previous credential in place")
}
