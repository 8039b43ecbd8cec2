package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "DB_PATH", "CLIENT_ORIGIN", "LEDGER_RPC_URL", "LEDGER_CONTRACT",
	"AGENT_PRIVATE_KEY", "LEDGER_CONFIRM_TIMEOUT", "GEMINI_API_KEY", "GEMINI_MODEL",
	"OPERATOR_SECRET", "AGENT_SECRET_KEY", "LOOP_INTERVAL", "LOOP_AUTOSTART", "TRIES_PER_ENTRY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5175", cfg.Addr())
	assert.Equal(t, "./data/zoltar.db", cfg.DBPath)
	assert.Equal(t, "https://sepolia.base.org", cfg.LedgerRPCURL)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout)
	assert.Equal(t, 30*time.Second, cfg.LoopInterval)
	assert.False(t, cfg.LoopAutostart)
	assert.Equal(t, 5, cfg.TriesPerEntry)
	assert.Error(t, cfg.RequireServe())
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9000")
	t.Setenv("LOOP_INTERVAL", "5s")
	t.Setenv("LOOP_AUTOSTART", "true")
	t.Setenv("TRIES_PER_ENTRY", "3")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.LoopInterval)
	assert.True(t, cfg.LoopAutostart)
	assert.Equal(t, 3, cfg.TriesPerEntry)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout, "bad durations fall back")
	assert.NoError(t, cfg.RequireServe())
}

func TestOperatorSecretFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_SECRET_KEY", "legacy")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.OperatorSecret)

	t.Setenv("OPERATOR_SECRET", "primary")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.OperatorSecret)
}

func TestRejectsNonPositive(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIES_PER_ENTRY", "0")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("LOOP_INTERVAL", "-1s")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadDotenv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("DB_PATH"))
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PATH=/tmp/from-dotenv.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DB_PATH") })

	LoadDotenv(path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.DBPath)
}
