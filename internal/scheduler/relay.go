package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/notify"
)

// RelayConfig bounds one relay cycle.
type RelayConfig struct {
	BatchSize  int
	MaxRetries int
	LockTTL    time.Duration
}

// Relay drains PENDING outbox entries to the external ledger with bounded
// retries. Delivery is at least once: an attempt that succeeded on the ledger
// but failed to report back is retried, so the ledger side must be idempotent
// per market hash.
type Relay struct {
	outbox   domain.OutboxStore
	ledger   domain.LedgerClient
	bus      domain.EventBus    // optional
	locks    domain.LockManager // optional
	notifier *notify.Notifier   // optional
	cfg      RelayConfig
	logger   *slog.Logger
}

// NewRelay creates the outbox relay worker. bus, locks, and notifier may be
// nil.
func NewRelay(
	outbox domain.OutboxStore,
	ledger domain.LedgerClient,
	bus domain.EventBus,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg RelayConfig,
	logger *slog.Logger,
) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Relay{
		outbox:   outbox,
		ledger:   ledger,
		bus:      bus,
		locks:    locks,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "relay")),
	}
}

// RunLoop runs relay cycles on a repeating interval until the context is
// cancelled.
func (r *Relay) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := r.Run(ctx); err != nil {
		r.logger.Error("relay cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("relay cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Run performs one relay cycle over up to BatchSize pending entries,
// oldest-first. A failure on one entry never blocks the rest of the cycle.
func (r *Relay) Run(ctx context.Context) error {
	if unlock, ok := r.acquireTickLock(ctx); !ok {
		return nil
	} else if unlock != nil {
		defer unlock()
	}

	entries, err := r.outbox.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, e := range entries {
		r.relayEntry(ctx, e)
	}
	return nil
}

// relayEntry attempts exactly one delivery of one outbox entry. Decode
// failures are permanent: the stored payload is corrupt and retrying can
// never fix it. Ledger failures are transient until the retry budget runs
// out.
func (r *Relay) relayEntry(ctx context.Context, e domain.OutboxEntry) {
	payload, err := domain.DecodeSettlementPayload(e.Payload)
	if err != nil {
		reason := fmt.Sprintf("bad payload: %v", err)
		if markErr := r.outbox.MarkFailed(ctx, e.ID, reason); markErr != nil {
			r.logger.ErrorContext(ctx, "mark failed errored",
				slog.String("entry_id", e.ID.String()),
				slog.String("error", markErr.Error()),
			)
			return
		}
		r.terminalFailure(ctx, e, reason)
		return
	}

	err = r.ledger.Submit(ctx, payload.MarketHash, payload.Leaf, payload.OutcomeMicros, payload.DecidedAt)
	if err == nil {
		if markErr := r.outbox.MarkSent(ctx, e.ID); markErr != nil {
			// The submission landed but the status write failed; the entry
			// stays PENDING and will be re-sent. Ledger idempotency absorbs
			// the duplicate.
			r.logger.ErrorContext(ctx, "mark sent errored",
				slog.String("entry_id", e.ID.String()),
				slog.String("error", markErr.Error()),
			)
			return
		}
		r.logger.InfoContext(ctx, "settlement relayed",
			slog.String("entry_id", e.ID.String()),
			slog.String("market_id", e.MarketID.String()),
		)
		r.publish(ctx, domain.Event{
			Type:     domain.EventRelaySent,
			MarketID: e.MarketID.String(),
			At:       time.Now().UTC(),
		})
		return
	}

	status, recErr := r.outbox.RecordFailure(ctx, e.ID, err.Error(), r.cfg.MaxRetries)
	if recErr != nil {
		r.logger.ErrorContext(ctx, "record failure errored",
			slog.String("entry_id", e.ID.String()),
			slog.String("error", recErr.Error()),
		)
		return
	}

	if status == domain.OutboxStatusFailed {
		r.terminalFailure(ctx, e, fmt.Sprintf("retry budget exhausted: %v", err))
		return
	}

	r.logger.WarnContext(ctx, "relay attempt failed",
		slog.String("entry_id", e.ID.String()),
		slog.String("market_id", e.MarketID.String()),
		slog.Int("retries", e.Retries+1),
		slog.String("error", err.Error()),
	)
}

// terminalFailure records the observability trail for an entry that will
// never be delivered: structured log, engine event, and operator alert.
func (r *Relay) terminalFailure(ctx context.Context, e domain.OutboxEntry, reason string) {
	r.logger.ErrorContext(ctx, "relay permanently failed",
		slog.String("entry_id", e.ID.String()),
		slog.String("market_id", e.MarketID.String()),
		slog.String("reason", reason),
	)

	r.publish(ctx, domain.Event{
		Type:     domain.EventRelayFailed,
		MarketID: e.MarketID.String(),
		Detail:   reason,
		At:       time.Now().UTC(),
	})

	if r.notifier != nil {
		_ = r.notifier.Notify(ctx, domain.EventRelayFailed,
			"Settlement relay failed",
			fmt.Sprintf("market %s: %s", e.MarketID, reason),
		)
	}
}

func (r *Relay) publish(ctx context.Context, ev domain.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Relay) acquireTickLock(ctx context.Context) (func(), bool) {
	if r.locks == nil {
		return nil, true
	}
	unlock, err := r.locks.Acquire(ctx, "relay", r.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.DebugContext(ctx, "tick lock held elsewhere")
			return nil, false
		}
		r.logger.WarnContext(ctx, "tick lock unavailable", slog.String("error", err.Error()))
		return nil, true
	}
	return unlock, true
}
