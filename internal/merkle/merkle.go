// Package merkle builds the commitments that anchor settlements externally:
// per-settlement leaf hashes and the binary Merkle root over an ordered leaf
// set. All encodings here are canonical and fixed-width; they are recomputed
// independently for audit verification and must never change.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"
)

// ZeroRoot is the defined root of an empty leaf set.
var ZeroRoot [32]byte

// MarketHash is the ledger-facing identity of a market: SHA-256 over the raw
// 16 UUID bytes.
func MarketHash(marketID uuid.UUID) [32]byte {
	return sha256.Sum256(marketID[:])
}

// LeafHash digests one settlement for batch membership:
// SHA-256(marketID[16] || outcomeMicros u64be || decidedAt u64be).
func LeafHash(marketID uuid.UUID, outcomeMicros, decidedAt uint64) [32]byte {
	var buf [32]byte
	copy(buf[0:16], marketID[:])
	binary.BigEndian.PutUint64(buf[16:24], outcomeMicros)
	binary.BigEndian.PutUint64(buf[24:32], decidedAt)
	return sha256.Sum256(buf[:])
}

// Root folds an ordered leaf set into a single digest. Adjacent leaves are
// paired left to right and hashed as SHA-256(left || right); a level with an
// odd count duplicates its last leaf as its own partner. An empty set yields
// ZeroRoot and a single leaf is returned unchanged. The result depends only
// on leaf order and values, so callers must fix the order before calling.
func Root(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return ZeroRoot
	}

	level := make([][32]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}

			h := sha256.New()
			h.Write(left[:])
			h.Write(right[:])

			var out [32]byte
			h.Sum(out[:0])
			next = append(next, out)
		}
		level = next
	}

	return level[0]
}
