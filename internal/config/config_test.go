package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
	require.Equal(t, "oauth2-pkce-client", cfg.OIDC.ClientID)
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.OIDC.ScopeList())
	require.Equal(t, StoreFile, cfg.Session.Store)
	require.Equal(t, PolicyPoll, cfg.Recommendation.Policy)
	require.Equal(t, 8, cfg.Recommendation.MaxAttempts)
	require.Equal(t, "/", cfg.App.EntryPoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FITNESS_API_BASE_URL", "http://api.internal:9000/api")
	t.Setenv("FITNESS_API_TIMEOUT", "3s")
	t.Setenv("FITNESS_SESSION_STORE", "memory")
	t.Setenv("FITNESS_OIDC_SCOPES", "openid,email")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://api.internal:9000/api", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, StoreMemory, cfg.Session.Store)
	require.Equal(t, []string{"openid", "email"}, cfg.OIDC.ScopeList())
}

func TestLoadFileThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fitness.yaml")
	body := []byte("recommendation:\n  policy: delay\n  initial-delay: 1s\nsession:\n  store: redis\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, PolicyDelay, cfg.Recommendation.Policy)
	require.Equal(t, time.Second, cfg.Recommendation.InitialDelay)
	require.Equal(t, StoreRedis, cfg.Session.Store)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session:\n  store: floppy\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "session.store")
}
