package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Redis.Addr = ""
	cfg.Portfolio.TotalCapital = 0
	cfg.Orchestrator.PortfolioHeatLimit = 1.5
	cfg.Orchestrator.ScoringWeights.StrategyBonus = 0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "total_capital")
	assert.Contains(t, err.Error(), "portfolio_heat_limit")
	assert.Contains(t, err.Error(), "strategy_bonus")
}

func TestValidateStrategyBonusBounds(t *testing.T) {
	cfg := Defaults()

	cfg.Orchestrator.ScoringWeights.StrategyBonus = 0.04
	require.Error(t, cfg.Validate())

	cfg.Orchestrator.ScoringWeights.StrategyBonus = 0.31
	require.Error(t, cfg.Validate())

	cfg.Orchestrator.ScoringWeights.StrategyBonus = 0.05
	require.NoError(t, cfg.Validate())

	cfg.Orchestrator.ScoringWeights.StrategyBonus = 0.30
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidateRiskDelegateTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.DelegateURL = "http://risk.internal:8080/evaluate"
	cfg.Risk.DelegateTimeoutMs = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delegate_timeout_ms")

	cfg.Risk.DelegateTimeoutMs = 500
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.Risk.DelegateTimeout())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[portfolio]
total_capital = 250000.0

[orchestrator]
decision_loop_interval_ms = 50
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250_000.0, cfg.Portfolio.TotalCapital)
	assert.Equal(t, 50*time.Millisecond, cfg.Orchestrator.DecisionInterval())
	// Untouched keys keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.40, cfg.Orchestrator.ScoringWeights.Profit)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o600))

	t.Setenv("ORCH_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ORCH_DAILY_LOSS_LIMIT", "12500.5")
	t.Setenv("ORCH_ADAPTIVE_LEARNING_ENABLED", "false")
	t.Setenv("ORCH_RISK_DELEGATE_URL", "http://risk.internal:8080/evaluate")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 12_500.5, cfg.Orchestrator.DailyLossLimit)
	assert.False(t, cfg.Orchestrator.AdaptiveLearningEnabled)
	assert.Equal(t, "http://risk.internal:8080/evaluate", cfg.Risk.DelegateURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	o := OrchestratorConfig{
		DecisionLoopIntervalMs: 100,
		ReservationTTLSeconds:  300,
		SweepIntervalSeconds:   30,
		AdjustIntervalSeconds:  600,
	}
	assert.Equal(t, 100*time.Millisecond, o.DecisionInterval())
	assert.Equal(t, 5*time.Minute, o.ReservationTTL())
	assert.Equal(t, 30*time.Second, o.SweepInterval())
	assert.Equal(t, 10*time.Minute, o.AdjustInterval())
}
