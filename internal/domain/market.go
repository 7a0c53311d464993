package domain

import (
	"time"

	"github.com/google/uuid"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusClosed   MarketStatus = "CLOSED"
	MarketStatusResolved MarketStatus = "RESOLVED"
)

// Market is a question awaiting a numeric outcome decided by aggregated
// reports. Status only ever moves OPEN -> CLOSED -> RESOLVED; the store
// enforces the ordering with conditional updates, so there is no in-process
// locking anywhere in the service.
type Market struct {
	ID        uuid.UUID    `json:"id"`
	Question  string       `json:"question"`
	ClosesAt  time.Time    `json:"closes_at"`
	Status    MarketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Report is one source's claimed value for a market's outcome. Reports are
// immutable, accepted only while the market is OPEN, and deduplicated by the
// unique pair (market_id, idempotency_key).
type Report struct {
	ID             uuid.UUID `json:"id"`
	MarketID       uuid.UUID `json:"market_id"`
	Source         string    `json:"source"`
	Value          float64   `json:"value"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Settlement is the finalized outcome of a resolved market. At most one
// settlement exists per market; it is inserted in the same transaction as the
// CLOSED -> RESOLVED flip and the outbox enqueue.
type Settlement struct {
	ID        uuid.UUID `json:"id"`
	MarketID  uuid.UUID `json:"market_id"`
	Outcome   float64   `json:"outcome"`
	DecidedAt time.Time `json:"decided_at"`
}
