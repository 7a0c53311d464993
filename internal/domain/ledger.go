package domain

import (
	"context"
	"time"
)

// LedgerClient submits a finalized settlement to the external ledger. The
// engine depends only on success or failure; transport, signing, and
// confirmation semantics live behind this interface. Delivery is at least
// once, so the ledger side is assumed to be idempotent per market hash.
type LedgerClient interface {
	Submit(ctx context.Context, marketHash, leaf [32]byte, outcome, decidedAt uint64) error
}

// Event types published on the engine event bus.
const (
	EventMarketResolved = "market_resolved"
	EventBatchCommitted = "batch_committed"
	EventRelaySent      = "relay_sent"
	EventRelayFailed    = "relay_failed"
)

// Event is a lightweight engine notification fanned out to websocket clients
// and operator channels. It is observability only; no component makes
// decisions based on events.
type Event struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id,omitempty"`
	BatchID  string    `json:"batch_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// EventBus fans engine events out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events and a stop function. The channel
	// closes after stop is called or the context is cancelled.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// MarketCache is a read-through cache in front of MarketStore.
type MarketCache interface {
	Get(ctx context.Context, id string) (Market, error)
	Set(ctx context.Context, m Market) error
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides best-effort distributed locks used to skip duplicate
// scheduler ticks across replicas. Correctness never depends on these locks;
// the store's conditional writes remain the source of truth.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
