package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)
	require.NoError(t, os.Chdir(t.TempDir()))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, "bolt", cfg.Ledger.Backend)
	require.Equal(t, "I Love Shogun", cfg.Auth.WalletMessage)
}

func TestLoadOverlayFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(dir+"/config", 0o755))
	require.NoError(t, os.WriteFile(dir+"/config/default.yaml", []byte("server:\n  listen_addr: \":9090\"\n"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/config/production.yaml", []byte("quota:\n  relay_cap_bytes: 1000000\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)
	require.NoError(t, os.Chdir(dir))

	cfg, err := Load("production")
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.ListenAddr)
	require.EqualValues(t, 1000000, cfg.Quota.RelayCapBytes)
}

func TestLoadFromEnvUsesRelayEnv(t *testing.T) {
	t.Setenv("RELAY_ENV", "")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg)
}
