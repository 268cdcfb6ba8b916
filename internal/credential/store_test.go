package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/auth"
)

func sampleCredential() auth.Credential {
	return auth.Credential{
		Token:  "header.payload.signature",
		UserID: "user-1",
		Claims: auth.Claims{
			Subject:   "user-1",
			Name:      "Ada",
			Email:     "ada@example.com",
			ExpiresAt: time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// exercisePersistence runs the contract every backend must honour.
func exercisePersistence(t *testing.T, store Persistence) {
	t.Helper()
	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	cred := sampleCredential()
	require.NoError(t, store.Save(ctx, cred))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.True(t, cred.Equal(loaded), "load after save should return the saved credential")

	replacement := cred
	replacement.Token = "other.token.value"
	require.NoError(t, store.Save(ctx, replacement))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "other.token.value", loaded.Token)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	hs := Handshake{State: "state-1", Verifier: "verifier-1", ReturnTo: "/activities", StartedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.SaveHandshake(ctx, hs))
	loadedHS, err := store.LoadHandshake(ctx)
	require.NoError(t, err)
	require.NotNil(t, loadedHS)
	require.Equal(t, hs.State, loadedHS.State)
	require.Equal(t, hs.Verifier, loadedHS.Verifier)
	require.Equal(t, hs.ReturnTo, loadedHS.ReturnTo)
	require.True(t, hs.StartedAt.Equal(loadedHS.StartedAt))

	require.NoError(t, store.ClearHandshake(ctx))
	require.NoError(t, store.ClearHandshake(ctx))
	loadedHS, err = store.LoadHandshake(ctx)
	require.NoError(t, err)
	require.Nil(t, loadedHS)
}

func TestMemoryStoreContract(t *testing.T) {
	exercisePersistence(t, NewMemoryStore())
}

func TestFileStoreContract(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	exercisePersistence(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), sampleCredential()))

	info, err := os.Stat(filepath.Join(dir, credentialFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	loaded, err := second.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "user-1", loaded.UserID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files should not be left behind")
}

func TestFileStoreReportsCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, credentialFile), []byte("{not json"), 0o600))

	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRedisStoreRefusesExpiredCredential(t *testing.T) {
	// never dialled: the expiry check runs before any command is sent
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "expired")

	cred := sampleCredential()
	cred.Claims.ExpiresAt = time.Now().Add(-time.Minute)
	require.ErrorIs(t, store.Save(context.Background(), cred), ErrExpired)
}
