package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PLAY_PATH", "SYMBOL", "WINDOW_START_MS", "WINDOW_END_MS",
		"DATA_DIR", "ARTIFACTS_DIR", "SQLITE_PATH", "LOG_LEVEL", "METRICS_ADDR",
		"AUDIT_MODE", "BYBIT_API_KEY", "BYBIT_API_SECRET",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFailsWithoutPlayPath(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadResolvesRequiredAndDefaultedFields(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLAY_PATH", "./play.json")
	t.Setenv("SYMBOL", "BTCUSDT")
	t.Setenv("WINDOW_START_MS", "1000")
	t.Setenv("WINDOW_END_MS", "2000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "./play.json", cfg.PlayPath)
	require.Equal(t, "BTCUSDT", cfg.Symbol)
	require.Equal(t, int64(1000), cfg.WindowStart)
	require.Equal(t, int64(2000), cfg.WindowEnd)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.AuditMode)
	require.Empty(t, cfg.BybitAPIKey)
}

func TestLoadRejectsInvertedWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLAY_PATH", "./play.json")
	t.Setenv("SYMBOL", "BTCUSDT")
	t.Setenv("WINDOW_START_MS", "2000")
	t.Setenv("WINDOW_END_MS", "1000")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestBootstrapOpensStoreAndBuildsRunContext(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLAY_PATH", "./play.json")
	t.Setenv("SYMBOL", "BTCUSDT")
	t.Setenv("WINDOW_START_MS", "1000")
	t.Setenv("WINDOW_END_MS", "2000")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "runs.db"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	eng, err := Bootstrap(cfg)
	require.NoError(t, err)
	defer eng.Close()

	rc := eng.NewRun("hash-1", "play-1", "BTCUSDT")
	require.NotNil(t, rc.Metrics)
}
