package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORACLED_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ORACLED_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORACLED_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORACLED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORACLED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORACLED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORACLED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORACLED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORACLED_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORACLED_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORACLED_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORACLED_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLED_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "ORACLED_REDIS_CACHE_TTL_MINUTES")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "ORACLED_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.ContractAddress, "ORACLED_LEDGER_CONTRACT_ADDRESS")
	setInt64(&cfg.Ledger.ChainID, "ORACLED_LEDGER_CHAIN_ID")
	setStr(&cfg.Ledger.PrivateKey, "ORACLED_LEDGER_PRIVATE_KEY")
	setStr(&cfg.Ledger.EncryptedKeyPath, "ORACLED_LEDGER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Ledger.KeyPassword, "ORACLED_LEDGER_KEY_PASSWORD")
	setUint64(&cfg.Ledger.GasLimit, "ORACLED_LEDGER_GAS_LIMIT")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLED_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLED_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ORACLED_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ORACLED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLED_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ORACLED_S3_FORCE_PATH_STYLE")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.LifecycleInterval, "ORACLED_SCHEDULER_LIFECYCLE_INTERVAL")
	setDuration(&cfg.Scheduler.BatchInterval, "ORACLED_SCHEDULER_BATCH_INTERVAL")
	setDuration(&cfg.Scheduler.RelayInterval, "ORACLED_SCHEDULER_RELAY_INTERVAL")
	setInt(&cfg.Scheduler.ResolveBatchSize, "ORACLED_SCHEDULER_RESOLVE_BATCH_SIZE")
	setInt(&cfg.Scheduler.RelayBatchSize, "ORACLED_SCHEDULER_RELAY_BATCH_SIZE")
	setInt(&cfg.Scheduler.RelayMaxRetries, "ORACLED_SCHEDULER_RELAY_MAX_RETRIES")
	setFloat64(&cfg.Scheduler.ConsensusThreshold, "ORACLED_SCHEDULER_CONSENSUS_THRESHOLD")
	setDuration(&cfg.Scheduler.StallWarnAfter, "ORACLED_SCHEDULER_STALL_WARN_AFTER")
	setDuration(&cfg.Scheduler.LockTTL, "ORACLED_SCHEDULER_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ORACLED_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ORACLED_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ORACLED_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ORACLED_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORACLED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORACLED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORACLED_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORACLED_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORACLED_MODE")
	setStr(&cfg.LogLevel, "ORACLED_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
