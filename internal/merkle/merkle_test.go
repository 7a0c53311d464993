package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairHash(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func TestMarketHash(t *testing.T) {
	id := uuid.MustParse("0192b1c4-0000-7000-8000-000000000001")
	assert.Equal(t, [32]byte(sha256.Sum256(id[:])), MarketHash(id))
}

func TestLeafHash(t *testing.T) {
	id := uuid.New()
	var buf [32]byte
	copy(buf[0:16], id[:])
	binary.BigEndian.PutUint64(buf[16:24], 1_500_000)
	binary.BigEndian.PutUint64(buf[24:32], 1_700_000_000)

	assert.Equal(t, [32]byte(sha256.Sum256(buf[:])), LeafHash(id, 1_500_000, 1_700_000_000))
}

func TestLeafHash_FieldsMatter(t *testing.T) {
	id := uuid.New()
	base := LeafHash(id, 1, 2)
	assert.NotEqual(t, base, LeafHash(uuid.New(), 1, 2))
	assert.NotEqual(t, base, LeafHash(id, 2, 2))
	assert.NotEqual(t, base, LeafHash(id, 1, 3))
}

func TestRoot_Empty(t *testing.T) {
	assert.Equal(t, ZeroRoot, Root(nil))
	assert.Equal(t, ZeroRoot, Root([][32]byte{}))
}

func TestRoot_SingleLeaf(t *testing.T) {
	leaf := sha256.Sum256([]byte("only"))
	assert.Equal(t, leaf, Root([][32]byte{leaf}))
}

func TestRoot_TwoLeaves(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	assert.Equal(t, pairHash(a, b), Root([][32]byte{a, b}))
}

func TestRoot_OddLeafDuplicatesLast(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	c := sha256.Sum256([]byte("c"))

	want := pairHash(pairHash(a, b), pairHash(c, c))
	assert.Equal(t, want, Root([][32]byte{a, b, c}))
}

func TestRoot_FourLeaves(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	c := sha256.Sum256([]byte("c"))
	d := sha256.Sum256([]byte("d"))

	want := pairHash(pairHash(a, b), pairHash(c, d))
	assert.Equal(t, want, Root([][32]byte{a, b, c, d}))
}

func TestRoot_OrderSensitive(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	require.NotEqual(t, Root([][32]byte{a, b}), Root([][32]byte{b, a}))
}

func TestRoot_InputNotMutated(t *testing.T) {
	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	c := sha256.Sum256([]byte("c"))
	leaves := [][32]byte{a, b, c}

	Root(leaves)
	assert.Equal(t, [][32]byte{a, b, c}, leaves)
}
