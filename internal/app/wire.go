package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/veritaslabs/oraclesettle/internal/blob/s3"
	"github.com/veritaslabs/oraclesettle/internal/cache/redis"
	"github.com/veritaslabs/oraclesettle/internal/config"
	"github.com/veritaslabs/oraclesettle/internal/crypto"
	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/ledger/eth"
	"github.com/veritaslabs/oraclesettle/internal/notify"
	"github.com/veritaslabs/oraclesettle/internal/scheduler"
	"github.com/veritaslabs/oraclesettle/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// Optional members (Redis-backed, S3, ledger) are nil when not configured.
type Dependencies struct {
	// Postgres
	DB          *postgres.Client
	Markets     domain.MarketStore
	Reports     domain.ReportStore
	Settlements domain.SettlementStore
	Outbox      domain.OutboxStore
	Batches     domain.BatchStore

	// Redis (all nil when redis.addr is unset)
	Redis       *redis.Client
	MarketCache domain.MarketCache
	EventBus    domain.EventBus
	Locks       domain.LockManager

	// External ledger (nil in serve mode)
	Ledger domain.LedgerClient

	// Batch proof archival (nil when s3.bucket is unset)
	Archiver scheduler.ProofArchiver

	// Operator notifications
	Notifier *notify.Notifier
}

// needsLedger reports whether the mode runs the relay worker.
func needsLedger(mode string) bool {
	switch strings.ToLower(mode) {
	case "worker", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode needs persistence) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.DB = pgClient
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Reports = postgres.NewReportStore(pool)
	deps.Settlements = postgres.NewSettlementStore(pool)
	deps.Outbox = postgres.NewOutboxStore(pool)
	deps.Batches = postgres.NewBatchStore(pool)

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		cacheTTL := time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
		deps.Redis = redisClient
		deps.MarketCache = redis.NewMarketCache(redisClient, cacheTTL)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	}

	// --- External ledger (only for modes that run the relay) ---
	if needsLedger(cfg.Mode) {
		ledgerClient, err := eth.New(ctx, eth.Config{
			RPCURL:          cfg.Ledger.RPCURL,
			ContractAddress: cfg.Ledger.ContractAddress,
			ChainID:         cfg.Ledger.ChainID,
			GasLimit:        cfg.Ledger.GasLimit,
			Key: crypto.KeyConfig{
				RawPrivateKey:    cfg.Ledger.PrivateKey,
				EncryptedKeyPath: cfg.Ledger.EncryptedKeyPath,
				KeyPassword:      cfg.Ledger.KeyPassword,
			},
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger: %w", err)
		}
		closers = append(closers, ledgerClient.Close)
		deps.Ledger = ledgerClient
	}

	// --- S3 proof archival (optional) ---
	if cfg.S3.Bucket != "" {
		archiver, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = archiver
	}

	// --- Operator notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
