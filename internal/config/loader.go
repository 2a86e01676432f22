package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORCH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORCH_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORCH_S3_FORCE_PATH_STYLE")

	// ── Portfolio ──
	setFloat64(&cfg.Portfolio.TotalCapital, "ORCH_PORTFOLIO_TOTAL_CAPITAL")
	setFloat64(&cfg.Portfolio.FlashLoanLimit, "ORCH_PORTFOLIO_FLASH_LOAN_LIMIT")

	// ── Orchestrator ──
	setInt(&cfg.Orchestrator.DecisionLoopIntervalMs, "ORCH_DECISION_LOOP_INTERVAL_MS")
	setInt(&cfg.Orchestrator.MaxConcurrentOpportunities, "ORCH_MAX_CONCURRENT_OPPORTUNITIES")
	setFloat64(&cfg.Orchestrator.PortfolioHeatLimit, "ORCH_PORTFOLIO_HEAT_LIMIT")
	setFloat64(&cfg.Orchestrator.MaxLeverageRatio, "ORCH_MAX_LEVERAGE_RATIO")
	setInt(&cfg.Orchestrator.MaxPositions, "ORCH_MAX_POSITIONS")
	setFloat64(&cfg.Orchestrator.DailyLossLimit, "ORCH_DAILY_LOSS_LIMIT")
	setInt(&cfg.Orchestrator.ReservationTTLSeconds, "ORCH_RESERVATION_TTL_SECONDS")
	setInt(&cfg.Orchestrator.SweepIntervalSeconds, "ORCH_SWEEP_INTERVAL_SECONDS")
	setInt(&cfg.Orchestrator.DispatchRatePerSec, "ORCH_DISPATCH_RATE_PER_SEC")
	setBool(&cfg.Orchestrator.AdaptiveLearningEnabled, "ORCH_ADAPTIVE_LEARNING_ENABLED")
	setInt(&cfg.Orchestrator.AdjustIntervalSeconds, "ORCH_ADJUST_INTERVAL_SECONDS")
	setFloat64(&cfg.Orchestrator.ScoringWeights.Profit, "ORCH_SCORING_WEIGHT_PROFIT")
	setFloat64(&cfg.Orchestrator.ScoringWeights.Risk, "ORCH_SCORING_WEIGHT_RISK")
	setFloat64(&cfg.Orchestrator.ScoringWeights.CapitalEfficiency, "ORCH_SCORING_WEIGHT_CAPITAL_EFFICIENCY")
	setFloat64(&cfg.Orchestrator.ScoringWeights.StrategyBonus, "ORCH_SCORING_WEIGHT_STRATEGY_BONUS")

	// ── Risk ──
	setStr(&cfg.Risk.DelegateURL, "ORCH_RISK_DELEGATE_URL")
	setInt(&cfg.Risk.DelegateTimeoutMs, "ORCH_RISK_DELEGATE_TIMEOUT_MS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ORCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.IntervalMinutes, "ORCH_ARCHIVE_INTERVAL_MINUTES")
	setInt(&cfg.Archive.RetentionDays, "ORCH_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ORCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
