package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// payloadLen is the fixed size of an encoded SettlementPayload:
// marketHash(32) + leaf(32) + outcomeMicros(8) + decidedAt(8).
const payloadLen = 80

// OutcomeScale converts a float outcome into its integer wire representation.
// Outcomes travel as micro-units so the encoding never depends on float
// formatting.
const OutcomeScale = 1_000_000

// OutcomeMicros converts an outcome to micro-units, rounding half away from
// zero. Outcomes are non-negative by the time they reach the wire.
func OutcomeMicros(outcome float64) uint64 {
	return uint64(math.Round(outcome * OutcomeScale))
}

// SettlementPayload is the decoded form of an outbox entry's payload: the
// exact fields handed to the ledger client. The encoding is fixed-width
// big-endian binary and must never change, since leaves and audit digests are
// independently recomputed from it.
type SettlementPayload struct {
	MarketHash    [32]byte
	Leaf          [32]byte
	OutcomeMicros uint64
	DecidedAt     uint64 // unix seconds, UTC
}

// Encode serializes the payload into its canonical 80-byte form.
func (p SettlementPayload) Encode() []byte {
	buf := make([]byte, payloadLen)
	copy(buf[0:32], p.MarketHash[:])
	copy(buf[32:64], p.Leaf[:])
	binary.BigEndian.PutUint64(buf[64:72], p.OutcomeMicros)
	binary.BigEndian.PutUint64(buf[72:80], p.DecidedAt)
	return buf
}

// DecodeSettlementPayload parses a canonical payload. Any length mismatch is
// a permanent error: the payload is corrupt and will never become valid, so
// the relay worker fails the entry instead of retrying.
func DecodeSettlementPayload(data []byte) (SettlementPayload, error) {
	if len(data) != payloadLen {
		return SettlementPayload{}, fmt.Errorf("domain: settlement payload must be %d bytes, got %d", payloadLen, len(data))
	}
	var p SettlementPayload
	copy(p.MarketHash[:], data[0:32])
	copy(p.Leaf[:], data[32:64])
	p.OutcomeMicros = binary.BigEndian.Uint64(data[64:72])
	p.DecidedAt = binary.BigEndian.Uint64(data[72:80])
	return p, nil
}
