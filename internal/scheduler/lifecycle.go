// Package scheduler contains the three autonomous background loops of the
// settlement engine: market lifecycle, Merkle batching, and outbox relay.
// The loops never talk to each other in process; every handoff goes through
// persisted state, and every transition is a conditional write so duplicate
// ticks (including ticks from other replicas) are harmless no-ops.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/consensus"
	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/merkle"
)

// LifecycleConfig bounds one lifecycle cycle.
type LifecycleConfig struct {
	ResolveBatchSize   int
	ConsensusThreshold float64
	// StallWarnAfter controls when a CLOSED market that cannot reach
	// consensus starts producing warnings. Such markets accept no new
	// reports, so they need a human.
	StallWarnAfter time.Duration
	LockTTL        time.Duration
}

// Lifecycle auto-closes expired markets and resolves closed ones. Resolution
// writes the settlement, the RESOLVED flip, and the outbox job in one
// transaction; the outbox is the only path a settlement takes toward the
// ledger.
type Lifecycle struct {
	markets     domain.MarketStore
	reports     domain.ReportStore
	settlements domain.SettlementStore
	cache       domain.MarketCache // optional
	bus         domain.EventBus    // optional
	locks       domain.LockManager // optional
	cfg         LifecycleConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewLifecycle creates the lifecycle scheduler. cache, bus, and locks may be
// nil; the loop degrades to store-only operation without them.
func NewLifecycle(
	markets domain.MarketStore,
	reports domain.ReportStore,
	settlements domain.SettlementStore,
	cache domain.MarketCache,
	bus domain.EventBus,
	locks domain.LockManager,
	cfg LifecycleConfig,
	logger *slog.Logger,
) *Lifecycle {
	if cfg.ResolveBatchSize <= 0 {
		cfg.ResolveBatchSize = 10
	}
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = consensus.DefaultThreshold
	}
	return &Lifecycle{
		markets:     markets,
		reports:     reports,
		settlements: settlements,
		cache:       cache,
		bus:         bus,
		locks:       locks,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "lifecycle")),
		now:         time.Now,
	}
}

// RunLoop runs lifecycle cycles on a repeating interval until the context is
// cancelled.
func (l *Lifecycle) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := l.Run(ctx); err != nil {
		l.logger.Error("lifecycle cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("lifecycle loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := l.Run(ctx); err != nil {
				l.logger.Error("lifecycle cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Run performs one lifecycle cycle: close expired markets, then resolve up to
// the configured number of closed ones. A store error aborts only the market
// it occurred on; the cycle always visits every eligible market.
func (l *Lifecycle) Run(ctx context.Context) error {
	if unlock, ok := l.acquireTickLock(ctx, "lifecycle"); !ok {
		return nil
	} else if unlock != nil {
		defer unlock()
	}

	now := l.now().UTC()

	closed, err := l.markets.CloseExpired(ctx, now)
	if err != nil {
		return err
	}
	if closed > 0 {
		l.logger.InfoContext(ctx, "closed expired markets", slog.Int64("count", closed))
	}

	resolvable, err := l.markets.ListResolvable(ctx, now, l.cfg.ResolveBatchSize)
	if err != nil {
		return err
	}

	for _, m := range resolvable {
		l.resolveMarket(ctx, m, now)
	}

	return nil
}

// resolveMarket evaluates consensus for one CLOSED market and finalizes it
// when the reports agree. Errors are logged, never propagated: the next
// market and the next cycle must always run.
func (l *Lifecycle) resolveMarket(ctx context.Context, m domain.Market, now time.Time) {
	values, err := l.reports.Values(ctx, m.ID)
	if err != nil {
		l.logger.ErrorContext(ctx, "fetch report values failed",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	outcome, ok := consensus.Resolve(values, l.cfg.ConsensusThreshold)
	if !ok {
		// No new reports are admitted once a market closes, so a market that
		// has disagreed for too long will never converge on its own.
		if l.cfg.StallWarnAfter > 0 && now.Sub(m.ClosesAt) > l.cfg.StallWarnAfter {
			l.logger.WarnContext(ctx, "market stalled without consensus",
				slog.String("market_id", m.ID.String()),
				slog.Int("reports", len(values)),
				slog.Duration("closed_for", now.Sub(m.ClosesAt)),
			)
		}
		return
	}

	decidedAt := now.Truncate(time.Second)
	outcomeMicros := domain.OutcomeMicros(outcome)

	payload := domain.SettlementPayload{
		MarketHash:    merkle.MarketHash(m.ID),
		Leaf:          merkle.LeafHash(m.ID, outcomeMicros, uint64(decidedAt.Unix())),
		OutcomeMicros: outcomeMicros,
		DecidedAt:     uint64(decidedAt.Unix()),
	}

	settlement := domain.Settlement{
		ID:        uuid.New(),
		MarketID:  m.ID,
		Outcome:   outcome,
		DecidedAt: decidedAt,
	}
	entry := domain.OutboxEntry{
		ID:        uuid.New(),
		MarketID:  m.ID,
		Payload:   payload.Encode(),
		Status:    domain.OutboxStatusPending,
		CreatedAt: decidedAt,
	}

	if err := l.settlements.Finalize(ctx, settlement, entry); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent tick won the conditional flip. Nothing to do.
			l.logger.DebugContext(ctx, "market already resolved",
				slog.String("market_id", m.ID.String()),
			)
			return
		}
		l.logger.ErrorContext(ctx, "finalize market failed",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	l.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", m.ID.String()),
		slog.Float64("outcome", outcome),
		slog.Int("reports", len(values)),
	)

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, m.ID.String()); err != nil {
			l.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	l.publish(ctx, domain.Event{
		Type:     domain.EventMarketResolved,
		MarketID: m.ID.String(),
		At:       decidedAt,
	})
}

func (l *Lifecycle) publish(ctx context.Context, ev domain.Event) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// acquireTickLock grabs the best-effort distributed tick lock. The second
// return is false when another replica holds the lock and this tick should be
// skipped entirely.
func (l *Lifecycle) acquireTickLock(ctx context.Context, key string) (func(), bool) {
	if l.locks == nil {
		return nil, true
	}
	unlock, err := l.locks.Acquire(ctx, key, l.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			l.logger.DebugContext(ctx, "tick lock held elsewhere", slog.String("key", key))
			return nil, false
		}
		// Redis being down must not stop the engine; fall through unlocked.
		l.logger.WarnContext(ctx, "tick lock unavailable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, true
	}
	return unlock, true
}
