// Package config defines the top-level configuration for the oracle
// settlement engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORACLED_* environment
// variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Ledger    LedgerConfig    `toml:"ledger"`
	S3        S3Config        `toml:"s3"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
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

// RedisConfig holds Redis connection parameters. Redis provides the market
// read cache, best-effort scheduler locks, and the event bus; the engine runs
// without it when Addr is empty.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// LedgerConfig holds the external ledger (EVM contract) parameters.
type LedgerConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ContractAddress  string `toml:"contract_address"`
	ChainID          int64  `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	GasLimit         uint64 `toml:"gas_limit"`
}

// S3Config holds S3-compatible object storage parameters for batch proof
// archival. Archival is disabled when Bucket is empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SchedulerConfig holds the cadence and bounds of the three background loops.
type SchedulerConfig struct {
	LifecycleInterval  duration `toml:"lifecycle_interval"`
	BatchInterval      duration `toml:"batch_interval"`
	RelayInterval      duration `toml:"relay_interval"`
	ResolveBatchSize   int      `toml:"resolve_batch_size"`
	RelayBatchSize     int      `toml:"relay_batch_size"`
	RelayMaxRetries    int      `toml:"relay_max_retries"`
	ConsensusThreshold float64  `toml:"consensus_threshold"`
	StallWarnAfter     duration `toml:"stall_warn_after"`
	LockTTL            duration `toml:"lock_ttl"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML values like "10s" decode directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration that Load layers the TOML file
// on top of.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:              0,
			PoolSize:        10,
			MaxRetries:      3,
			CacheTTLMinutes: 5,
		},
		Ledger: LedgerConfig{
			GasLimit: 300_000,
		},
		Scheduler: SchedulerConfig{
			LifecycleInterval:  duration{10 * time.Second},
			BatchInterval:      duration{30 * time.Second},
			RelayInterval:      duration{5 * time.Second},
			ResolveBatchSize:   10,
			RelayBatchSize:     10,
			RelayMaxRetries:    5,
			ConsensusThreshold: 0.01,
			StallWarnAfter:     duration{24 * time.Hour},
			LockTTL:            duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal misconfigurations. It is called
// once at boot after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "worker", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
		return fmt.Errorf("config: postgres requires a dsn or host/database/user")
	}

	if c.Scheduler.LifecycleInterval.Duration <= 0 ||
		c.Scheduler.BatchInterval.Duration <= 0 ||
		c.Scheduler.RelayInterval.Duration <= 0 {
		return fmt.Errorf("config: scheduler intervals must be positive")
	}
	if c.Scheduler.ResolveBatchSize <= 0 || c.Scheduler.RelayBatchSize <= 0 {
		return fmt.Errorf("config: scheduler batch sizes must be positive")
	}
	if c.Scheduler.RelayMaxRetries < 0 {
		return fmt.Errorf("config: relay_max_retries must not be negative")
	}
	if c.Scheduler.ConsensusThreshold <= 0 || c.Scheduler.ConsensusThreshold >= 1 {
		return fmt.Errorf("config: consensus_threshold must be in (0, 1)")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	mode := strings.ToLower(c.Mode)
	if mode == "worker" || mode == "full" {
		if c.Ledger.RPCURL == "" || c.Ledger.ContractAddress == "" {
			return fmt.Errorf("config: ledger rpc_url and contract_address are required in %s mode", mode)
		}
		if c.Ledger.PrivateKey == "" && c.Ledger.EncryptedKeyPath == "" {
			return fmt.Errorf("config: ledger needs a private_key or encrypted_key_path")
		}
		if c.Ledger.ChainID <= 0 {
			return fmt.Errorf("config: ledger chain_id must be positive")
		}
	}

	return nil
}
