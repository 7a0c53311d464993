package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of a relay job.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// OutboxEntry is a durable relay job written in the same transaction as the
// settlement it propagates. The relay worker drains PENDING entries
// oldest-first; SENT and FAILED are terminal.
type OutboxEntry struct {
	ID        uuid.UUID
	MarketID  uuid.UUID
	Payload   []byte // canonical SettlementPayload encoding
	Status    OutboxStatus
	Retries   int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Batch commits a set of settlements under one Merkle root for external
// anchoring. Immutable once created.
type Batch struct {
	ID         uuid.UUID `json:"id"`
	MerkleRoot [32]byte  `json:"-"`
	Size       int       `json:"size"` // member count, derived on read
	CreatedAt  time.Time `json:"created_at"`
}

// BatchItem records one settlement's membership in a batch. A market appears
// in at most one batch ever; the store's primary key on market_id enforces it.
type BatchItem struct {
	BatchID  uuid.UUID
	MarketID uuid.UUID
}
