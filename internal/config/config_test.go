package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Duration(0), cfg.Matching.MatchWindow)
	require.Equal(t, SyncNeighbours, cfg.Sync.SyncPolicy)
	require.Equal(t, DisseminationNeighbours, cfg.Dissemination.Policy)
	require.Equal(t, "anydex-data", cfg.StorePath)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ANYDEX_MATCH_WINDOW_MS", "250")
	t.Setenv("ANYDEX_SYNC_POLICY", "NONE")
	t.Setenv("ANYDEX_FANOUT", "8")
	t.Setenv("ANYDEX_STORE_PATH", "/tmp/anydex-test")

	cfg := LoadFromEnv("/nonexistent/.env")

	require.Equal(t, 250*time.Millisecond, cfg.Matching.MatchWindow)
	require.Equal(t, SyncNone, cfg.Sync.SyncPolicy)
	require.Equal(t, 8, cfg.Dissemination.Fanout)
	require.Equal(t, "/tmp/anydex-test", cfg.StorePath)
}

func TestLoadFromEnvIgnoresInvalidInts(t *testing.T) {
	t.Setenv("ANYDEX_MATCH_BATCH_SIZE", "not-a-number")
	os.Unsetenv("ANYDEX_MATCH_WINDOW_MS")

	cfg := LoadFromEnv("/nonexistent/.env")
	require.Equal(t, Default().Matching.MatchProcessBatchSize, cfg.Matching.MatchProcessBatchSize)
}
