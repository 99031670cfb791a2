package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gpt-4-turbo-preview", cfg.LLMModel)
	assert.Equal(t, 3, cfg.PostingWorkers)
	assert.Equal(t, 5*time.Minute, cfg.AutoPostInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9000")
	t.Setenv("POSTING_WORKERS", "5")
	t.Setenv("DB_URL", "postgres://u:p@db:5432/engage")
	t.Setenv("SUPABASE_URL", "postgres://supabase")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5, cfg.PostingWorkers)
	assert.Equal(t, "postgres://u:p@db:5432/engage", cfg.DatabaseURL())
}

func TestDatabaseURL_FallsBackToSupabase(t *testing.T) {
	t.Setenv("SUPABASE_URL", "postgres://supabase")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://supabase", cfg.DatabaseURL())
}

func TestGetAIBackoffConfig_TestEnvShortens(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	maxElapsed, initial, maxIv, mult := cfg.GetAIBackoffConfig()
	assert.Equal(t, 5*time.Second, maxElapsed)
	assert.Equal(t, 100*time.Millisecond, initial)
	assert.Equal(t, time.Second, maxIv)
	assert.Equal(t, 2.0, mult)
}
