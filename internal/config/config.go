// Package config defines the top-level configuration for the orchestrator
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORCH_* environment variables.
type Config struct {
	Redis        RedisConfig        `toml:"redis"`
	Postgres     PostgresConfig     `toml:"postgres"`
	S3           S3Config           `toml:"s3"`
	Portfolio    PortfolioConfig    `toml:"portfolio"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Risk         RiskConfig         `toml:"risk"`
	Archive      ArchiveConfig      `toml:"archive"`
	Notify       NotifyConfig       `toml:"notify"`
	LogLevel     string             `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PortfolioConfig holds the capital base the ledger starts from.
type PortfolioConfig struct {
	TotalCapital   float64 `toml:"total_capital"`
	FlashLoanLimit float64 `toml:"flash_loan_limit"`
}

// OrchestratorConfig holds the decision-loop and risk parameters.
type OrchestratorConfig struct {
	DecisionLoopIntervalMs     int     `toml:"decision_loop_interval_ms"`
	MaxConcurrentOpportunities int     `toml:"max_concurrent_opportunities"`
	PortfolioHeatLimit         float64 `toml:"portfolio_heat_limit"`
	MaxLeverageRatio           float64 `toml:"max_leverage_ratio"`
	MaxPositions               int     `toml:"max_positions"`
	DailyLossLimit             float64 `toml:"daily_loss_limit"`
	ReservationTTLSeconds      int     `toml:"reservation_ttl_seconds"`
	SweepIntervalSeconds       int     `toml:"sweep_interval_seconds"`
	DispatchRatePerSec         int     `toml:"dispatch_rate_per_sec"`
	AdaptiveLearningEnabled    bool    `toml:"adaptive_learning_enabled"`
	AdjustIntervalSeconds      int     `toml:"adjust_interval_seconds"`

	ScoringWeights ScoringWeightsConfig `toml:"scoring_weights"`
}

// ScoringWeightsConfig holds the composite score weight vector.
type ScoringWeightsConfig struct {
	Profit            float64 `toml:"profit"`
	Risk              float64 `toml:"risk"`
	CapitalEfficiency float64 `toml:"capital_efficiency"`
	StrategyBonus     float64 `toml:"strategy_bonus"`
}

// RiskConfig configures the external risk-manager delegate invoked as the
// final gate rule. An empty URL disables the delegate.
type RiskConfig struct {
	DelegateURL       string `toml:"delegate_url"`
	DelegateTimeoutMs int    `toml:"delegate_timeout_ms"`
}

// DelegateTimeout returns the delegate call timeout as a time.Duration.
func (r RiskConfig) DelegateTimeout() time.Duration {
	return time.Duration(r.DelegateTimeoutMs) * time.Millisecond
}

// ArchiveConfig controls the settlement cold-storage archiver.
type ArchiveConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
	RetentionDays   int  `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// DecisionInterval returns the decision loop cadence as a time.Duration.
func (o OrchestratorConfig) DecisionInterval() time.Duration {
	return time.Duration(o.DecisionLoopIntervalMs) * time.Millisecond
}

// ReservationTTL returns the reservation lifetime as a time.Duration.
func (o OrchestratorConfig) ReservationTTL() time.Duration {
	return time.Duration(o.ReservationTTLSeconds) * time.Second
}

// SweepInterval returns the sweeper cadence as a time.Duration.
func (o OrchestratorConfig) SweepInterval() time.Duration {
	return time.Duration(o.SweepIntervalSeconds) * time.Second
}

// AdjustInterval returns the weight-adjuster cadence as a time.Duration.
func (o OrchestratorConfig) AdjustInterval() time.Duration {
	return time.Duration(o.AdjustIntervalSeconds) * time.Second
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orchestrator",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orchestrator-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Portfolio: PortfolioConfig{
			TotalCapital:   100_000,
			FlashLoanLimit: 500_000,
		},
		Orchestrator: OrchestratorConfig{
			DecisionLoopIntervalMs:     100,
			MaxConcurrentOpportunities: 5,
			PortfolioHeatLimit:         0.80,
			MaxLeverageRatio:           3.0,
			MaxPositions:               10,
			DailyLossLimit:             5_000,
			ReservationTTLSeconds:      300,
			SweepIntervalSeconds:       30,
			DispatchRatePerSec:         20,
			AdaptiveLearningEnabled:    true,
			AdjustIntervalSeconds:      300,
			ScoringWeights: ScoringWeightsConfig{
				Profit:            0.40,
				Risk:              0.30,
				CapitalEfficiency: 0.20,
				StrategyBonus:     0.10,
			},
		},
		Risk: RiskConfig{
			DelegateTimeoutMs: 2000,
		},
		Archive: ArchiveConfig{
			Enabled:         false,
			IntervalMinutes: 60,
			RetentionDays:   7,
		},
		Notify: NotifyConfig{
			Events: []string{"circuit_breaker", "forced_release", "dispatch_failure", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// S3 is only required when the archiver is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.IntervalMinutes < 1 {
			errs = append(errs, "archive: interval_minutes must be >= 1")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Portfolio
	if c.Portfolio.TotalCapital <= 0 {
		errs = append(errs, "portfolio: total_capital must be > 0")
	}
	if c.Portfolio.FlashLoanLimit < 0 {
		errs = append(errs, "portfolio: flash_loan_limit must be >= 0")
	}

	// Orchestrator
	o := c.Orchestrator
	if o.DecisionLoopIntervalMs < 1 {
		errs = append(errs, "orchestrator: decision_loop_interval_ms must be >= 1")
	}
	if o.MaxConcurrentOpportunities < 1 {
		errs = append(errs, "orchestrator: max_concurrent_opportunities must be >= 1")
	}
	if o.PortfolioHeatLimit <= 0 || o.PortfolioHeatLimit > 1 {
		errs = append(errs, fmt.Sprintf("orchestrator: portfolio_heat_limit must be in (0, 1], got %g", o.PortfolioHeatLimit))
	}
	if o.MaxLeverageRatio < 1 {
		errs = append(errs, "orchestrator: max_leverage_ratio must be >= 1")
	}
	if o.MaxPositions < 1 {
		errs = append(errs, "orchestrator: max_positions must be >= 1")
	}
	if o.DailyLossLimit <= 0 {
		errs = append(errs, "orchestrator: daily_loss_limit must be > 0")
	}
	if o.ReservationTTLSeconds < 1 {
		errs = append(errs, "orchestrator: reservation_ttl_seconds must be >= 1")
	}
	if o.SweepIntervalSeconds < 1 {
		errs = append(errs, "orchestrator: sweep_interval_seconds must be >= 1")
	}
	if o.DispatchRatePerSec < 1 {
		errs = append(errs, "orchestrator: dispatch_rate_per_sec must be >= 1")
	}
	if o.AdaptiveLearningEnabled && o.AdjustIntervalSeconds < 1 {
		errs = append(errs, "orchestrator: adjust_interval_seconds must be >= 1 when adaptive learning is enabled")
	}

	// Risk delegate
	if c.Risk.DelegateURL != "" && c.Risk.DelegateTimeoutMs < 1 {
		errs = append(errs, "risk: delegate_timeout_ms must be >= 1 when delegate_url is set")
	}

	// Scoring weights
	w := o.ScoringWeights
	for _, weight := range []struct {
		name  string
		value float64
	}{
		{"profit", w.Profit},
		{"risk", w.Risk},
		{"capital_efficiency", w.CapitalEfficiency},
	} {
		if weight.value < 0 || weight.value > 1 {
			errs = append(errs, fmt.Sprintf("orchestrator.scoring_weights: %s must be in [0, 1], got %g", weight.name, weight.value))
		}
	}
	if w.StrategyBonus < 0.05 || w.StrategyBonus > 0.30 {
		errs = append(errs, fmt.Sprintf("orchestrator.scoring_weights: strategy_bonus must be in [0.05, 0.30], got %g", w.StrategyBonus))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
