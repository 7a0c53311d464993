package domain

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementPayload_EncodeDecode(t *testing.T) {
	p := SettlementPayload{
		MarketHash:    sha256.Sum256([]byte("market")),
		Leaf:          sha256.Sum256([]byte("leaf")),
		OutcomeMicros: 100_500_000,
		DecidedAt:     1_700_000_000,
	}

	encoded := p.Encode()
	require.Len(t, encoded, 80)

	decoded, err := DecodeSettlementPayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestSettlementPayload_EncodeIsBigEndian(t *testing.T) {
	p := SettlementPayload{OutcomeMicros: 1, DecidedAt: 0x0102030405060708}
	encoded := p.Encode()

	assert.Equal(t, byte(0x01), encoded[71])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, encoded[72:80])
}

func TestDecodeSettlementPayload_WrongLength(t *testing.T) {
	_, err := DecodeSettlementPayload(nil)
	assert.Error(t, err)

	_, err = DecodeSettlementPayload(make([]byte, 79))
	assert.Error(t, err)

	_, err = DecodeSettlementPayload(make([]byte, 81))
	assert.Error(t, err)
}

func TestOutcomeMicros(t *testing.T) {
	assert.Equal(t, uint64(0), OutcomeMicros(0))
	assert.Equal(t, uint64(1_000_000), OutcomeMicros(1))
	assert.Equal(t, uint64(100_500_000), OutcomeMicros(100.5))
	// Rounds to nearest micro-unit.
	assert.Equal(t, uint64(333_333), OutcomeMicros(0.3333333))
	assert.Equal(t, uint64(2), OutcomeMicros(0.0000015))
}
