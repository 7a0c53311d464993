package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MarketStore persists markets and performs their conditional lifecycle
// transitions. Implementations must make CloseExpired a set-based conditional
// update so concurrent scheduler ticks cannot lose writes.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id uuid.UUID) (Market, error)
	// List returns markets newest-first.
	List(ctx context.Context, limit, offset int) ([]Market, error)
	Count(ctx context.Context) (int64, error)
	// CloseExpired flips every OPEN market whose closes_at has passed to
	// CLOSED and reports how many rows changed. Zero matches is a no-op.
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	// ListResolvable returns up to limit CLOSED markets eligible for
	// resolution, oldest close first.
	ListResolvable(ctx context.Context, now time.Time, limit int) ([]Market, error)
}

// ReportStore persists reports. Create returns ErrAlreadyExists when the
// (market_id, idempotency_key) pair has been seen before.
type ReportStore interface {
	Create(ctx context.Context, r Report) error
	// ListByMarket returns reports oldest-first.
	ListByMarket(ctx context.Context, marketID uuid.UUID) ([]Report, error)
	Values(ctx context.Context, marketID uuid.UUID) ([]float64, error)
}

// SettlementStore persists settlements and owns the finalize transaction.
type SettlementStore interface {
	// Finalize atomically flips the market CLOSED -> RESOLVED, inserts the
	// settlement, and enqueues the outbox entry. If the market is no longer
	// CLOSED (a concurrent tick already resolved it) it returns
	// ErrAlreadyExists and nothing is written.
	Finalize(ctx context.Context, s Settlement, entry OutboxEntry) error
	GetByMarket(ctx context.Context, marketID uuid.UUID) (Settlement, error)
	// ListUnbatched returns settlements with no batch membership yet, ordered
	// by decided_at then market_id. The order is part of the batch identity.
	ListUnbatched(ctx context.Context) ([]Settlement, error)
}

// OutboxStore drives the bounded-retry relay queue.
type OutboxStore interface {
	// ListPending returns up to limit PENDING entries oldest-first.
	ListPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	// MarkSent records terminal success and clears any prior error.
	MarkSent(ctx context.Context, id uuid.UUID) error
	// MarkFailed records a permanent failure that must never be retried.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// RecordFailure increments the retry counter after a failed relay
	// attempt. Once retries exceed maxRetries the entry flips to FAILED;
	// otherwise it stays PENDING. The resulting status is returned so the
	// caller can alert on exhaustion.
	RecordFailure(ctx context.Context, id uuid.UUID, reason string, maxRetries int) (OutboxStatus, error)
}

// BatchStore persists Merkle batches.
type BatchStore interface {
	// Create inserts the batch and one membership row per market in a single
	// transaction. The primary key on batch_items.market_id guarantees a
	// settlement is batched at most once.
	Create(ctx context.Context, b Batch, marketIDs []uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]Batch, error)
}
