package scheduler

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

func pendingEntry(store *memStore) domain.OutboxEntry {
	payload := domain.SettlementPayload{
		MarketHash:    sha256.Sum256([]byte("market")),
		Leaf:          sha256.Sum256([]byte("leaf")),
		OutcomeMicros: 100_500_000,
		DecidedAt:     1_700_000_000,
	}
	e := domain.OutboxEntry{
		ID:        uuid.New(),
		MarketID:  uuid.New(),
		Payload:   payload.Encode(),
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
	store.outbox = append(store.outbox, e)
	return e
}

func newTestRelay(store *memStore, ledger domain.LedgerClient, bus domain.EventBus, cfg RelayConfig) *Relay {
	return NewRelay(store, ledger, bus, nil, nil, cfg, testLogger())
}

func TestRelay_DeliversAndMarksSent(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{}
	bus := &fakeBus{}
	e := pendingEntry(store)

	r := newTestRelay(store, ledger, bus, RelayConfig{})
	require.NoError(t, r.Run(context.Background()))

	got := store.entry(e.ID)
	assert.Equal(t, domain.OutboxStatusSent, got.Status)
	assert.Empty(t, got.LastError)

	require.Len(t, ledger.submissions, 1)
	sub := ledger.submissions[0]
	assert.Equal(t, [32]byte(sha256.Sum256([]byte("market"))), sub.marketHash)
	assert.Equal(t, uint64(100_500_000), sub.outcomeMicros)
	assert.Equal(t, uint64(1_700_000_000), sub.decidedAt)

	assert.Equal(t, []string{domain.EventRelaySent}, bus.typesSeen())
}

func TestRelay_TransientFailureStaysPending(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{err: errors.New("rpc timeout")}
	e := pendingEntry(store)

	r := newTestRelay(store, ledger, nil, RelayConfig{MaxRetries: 5})
	require.NoError(t, r.Run(context.Background()))

	got := store.entry(e.ID)
	assert.Equal(t, domain.OutboxStatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Contains(t, got.LastError, "rpc timeout")
}

func TestRelay_RetryBudgetExhaustion(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{err: errors.New("rpc down")}
	bus := &fakeBus{}
	e := pendingEntry(store)

	r := newTestRelay(store, ledger, bus, RelayConfig{MaxRetries: 5})

	// The first five failures leave the entry PENDING.
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Run(context.Background()))
		got := store.entry(e.ID)
		assert.Equal(t, domain.OutboxStatusPending, got.Status)
		assert.Equal(t, i, got.Retries)
	}

	// The sixth attempt pushes retries past the budget and goes terminal.
	require.NoError(t, r.Run(context.Background()))
	got := store.entry(e.ID)
	assert.Equal(t, domain.OutboxStatusFailed, got.Status)
	assert.Equal(t, 6, got.Retries)

	assert.Equal(t, []string{domain.EventRelayFailed}, bus.typesSeen())

	// FAILED is terminal: nothing left to relay.
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 6, store.entry(e.ID).Retries)
}

func TestRelay_RecoveryAfterTransientFailures(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{err: errors.New("rpc down")}
	e := pendingEntry(store)

	r := newTestRelay(store, ledger, nil, RelayConfig{MaxRetries: 5})
	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Run(context.Background()))

	ledger.err = nil
	require.NoError(t, r.Run(context.Background()))

	got := store.entry(e.ID)
	assert.Equal(t, domain.OutboxStatusSent, got.Status)
	assert.Equal(t, 2, got.Retries)
	assert.Empty(t, got.LastError)
}

func TestRelay_CorruptPayloadFailsPermanently(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{}
	bus := &fakeBus{}

	e := domain.OutboxEntry{
		ID:       uuid.New(),
		MarketID: uuid.New(),
		Payload:  []byte("not a payload"),
		Status:   domain.OutboxStatusPending,
	}
	store.outbox = append(store.outbox, e)

	r := newTestRelay(store, ledger, bus, RelayConfig{MaxRetries: 5})
	require.NoError(t, r.Run(context.Background()))

	got := store.entry(e.ID)
	assert.Equal(t, domain.OutboxStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "bad payload")
	// No retries burned, no ledger call made.
	assert.Equal(t, 0, got.Retries)
	assert.Empty(t, ledger.submissions)

	assert.Equal(t, []string{domain.EventRelayFailed}, bus.typesSeen())
}

func TestRelay_FailureIsolatedPerEntry(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{}
	bad := domain.OutboxEntry{
		ID:       uuid.New(),
		MarketID: uuid.New(),
		Payload:  []byte("corrupt"),
		Status:   domain.OutboxStatusPending,
	}
	store.outbox = append(store.outbox, bad)
	good := pendingEntry(store)

	r := newTestRelay(store, ledger, nil, RelayConfig{MaxRetries: 5})
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, domain.OutboxStatusFailed, store.entry(bad.ID).Status)
	assert.Equal(t, domain.OutboxStatusSent, store.entry(good.ID).Status)
}

func TestRelay_BatchSizeBoundsCycle(t *testing.T) {
	store := newMemStore()
	ledger := &fakeLedger{}
	for i := 0; i < 5; i++ {
		pendingEntry(store)
	}

	r := newTestRelay(store, ledger, nil, RelayConfig{BatchSize: 2})
	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, ledger.submissions, 2)

	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, ledger.submissions, 5)
}
