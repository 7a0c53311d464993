package scheduler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/merkle"
	"github.com/veritaslabs/oraclesettle/internal/notify"
)

// ProofArchiver stores an audit bundle for a committed batch in cold storage.
// Archival is strictly best effort; batching never waits on or fails with it.
type ProofArchiver interface {
	ArchiveBatch(ctx context.Context, b domain.Batch, leaves [][32]byte, members []domain.Settlement) error
}

// BatcherConfig bounds one batching cycle.
type BatcherConfig struct {
	LockTTL time.Duration
}

// Batcher groups settlements that are not yet part of any batch under a
// single Merkle commitment. Leaf order is the store's documented unbatched
// order (decided_at, then market_id), which makes the root reproducible from
// the database alone.
type Batcher struct {
	settlements domain.SettlementStore
	batches     domain.BatchStore
	archiver    ProofArchiver      // optional
	bus         domain.EventBus    // optional
	locks       domain.LockManager // optional
	notifier    *notify.Notifier   // optional
	cfg         BatcherConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewBatcher creates the batching scheduler. archiver, bus, locks, and
// notifier may be nil.
func NewBatcher(
	settlements domain.SettlementStore,
	batches domain.BatchStore,
	archiver ProofArchiver,
	bus domain.EventBus,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg BatcherConfig,
	logger *slog.Logger,
) *Batcher {
	return &Batcher{
		settlements: settlements,
		batches:     batches,
		archiver:    archiver,
		bus:         bus,
		locks:       locks,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "batcher")),
		now:         time.Now,
	}
}

// RunLoop runs batching cycles on a repeating interval until the context is
// cancelled.
func (b *Batcher) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := b.Run(ctx); err != nil {
		b.logger.Error("batch cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("batcher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := b.Run(ctx); err != nil {
				b.logger.Error("batch cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Run performs one batching cycle. With nothing unbatched it does nothing;
// otherwise it commits exactly one new batch covering every unbatched
// settlement.
func (b *Batcher) Run(ctx context.Context) error {
	if unlock, ok := b.acquireTickLock(ctx); !ok {
		return nil
	} else if unlock != nil {
		defer unlock()
	}

	members, err := b.settlements.ListUnbatched(ctx)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	leaves := make([][32]byte, len(members))
	marketIDs := make([]uuid.UUID, len(members))
	for i, s := range members {
		leaves[i] = merkle.LeafHash(s.MarketID, domain.OutcomeMicros(s.Outcome), uint64(s.DecidedAt.Unix()))
		marketIDs[i] = s.MarketID
	}

	batch := domain.Batch{
		ID:         uuid.New(),
		MerkleRoot: merkle.Root(leaves),
		Size:       len(members),
		CreatedAt:  b.now().UTC().Truncate(time.Second),
	}

	if err := b.batches.Create(ctx, batch, marketIDs); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent batcher committed some of these settlements first.
			// The next cycle picks up whatever is still unbatched.
			b.logger.DebugContext(ctx, "batch lost race, retrying next cycle")
			return nil
		}
		return err
	}

	rootHex := hex.EncodeToString(batch.MerkleRoot[:])
	b.logger.InfoContext(ctx, "batch committed",
		slog.String("batch_id", batch.ID.String()),
		slog.String("merkle_root", rootHex),
		slog.Int("settlements", len(members)),
	)

	b.publish(ctx, domain.Event{
		Type:    domain.EventBatchCommitted,
		BatchID: batch.ID.String(),
		Detail:  rootHex,
		At:      batch.CreatedAt,
	})

	if b.notifier != nil {
		_ = b.notifier.Notify(ctx, domain.EventBatchCommitted,
			"Settlement batch committed",
			fmt.Sprintf("batch %s: %d settlements, root %s", batch.ID, len(members), rootHex),
		)
	}

	if b.archiver != nil {
		if err := b.archiver.ArchiveBatch(ctx, batch, leaves, members); err != nil {
			b.logger.WarnContext(ctx, "batch proof archive failed",
				slog.String("batch_id", batch.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (b *Batcher) publish(ctx context.Context, ev domain.Event) {
	if b.bus == nil {
		return
	}
	if err := b.bus.Publish(ctx, ev); err != nil {
		b.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Batcher) acquireTickLock(ctx context.Context) (func(), bool) {
	if b.locks == nil {
		return nil, true
	}
	unlock, err := b.locks.Acquire(ctx, "batcher", b.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			b.logger.DebugContext(ctx, "tick lock held elsewhere")
			return nil, false
		}
		b.logger.WarnContext(ctx, "tick lock unavailable", slog.String("error", err.Error()))
		return nil, true
	}
	return unlock, true
}
