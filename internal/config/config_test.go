package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "quill.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://graph.threads.net/v1.0", cfg.Threads.BaseURL)
	assert.Equal(t, 30, cfg.Threads.TimeoutSecs)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 10000, cfg.Crawl.DefaultTimeoutMS)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 24, cfg.Pipeline.DedupeTTLHours)
	assert.Equal(t, 5, cfg.Engage.RecentPostLimit)
	assert.Equal(t, 20, cfg.Engage.MaxRepliesPerPost)
	assert.Equal(t, 15, cfg.Engage.ReplyMaxChars)
	assert.Equal(t, 100, cfg.Engage.DailyActionQuota)
	assert.Equal(t, 30, cfg.Engage.BatchApproveDelaySecs)
	assert.True(t, cfg.Engage.DelayBeforeApproval)
	assert.Equal(t, "all-topics", cfg.Schedule.PipelineMode)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/quill
log:
  level: debug
  format: console
engage:
  daily_action_quota: 20
  batch_approve_delay_secs: 10
  delay_before_approval: false
pipeline:
  dedupe_ttl_hours: 48
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Engage.DailyActionQuota)
	assert.False(t, cfg.Engage.DelayBeforeApproval)
	assert.Equal(t, 10*time.Second, cfg.Engage.BatchApproveDelay())
	assert.Equal(t, 48*time.Hour, cfg.Pipeline.DedupeTTL())
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("QUILL_ENGAGE_DAILY_ACTION_QUOTA", "50")
	t.Setenv("QUILL_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Engage.DailyActionQuota)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	p := PipelineConfig{AccountDelaySecs: 5, BackoffSecs: 2, DedupeTTLHours: 24}
	assert.Equal(t, 5*time.Second, p.AccountDelay())
	assert.Equal(t, 2*time.Second, p.Backoff())
	assert.Equal(t, 24*time.Hour, p.DedupeTTL())

	e := EngageConfig{BatchApproveDelaySecs: 30, TargetDelaySecs: 3}
	assert.Equal(t, 30*time.Second, e.BatchApproveDelay())
	assert.Equal(t, 3*time.Second, e.TargetDelay())
}
