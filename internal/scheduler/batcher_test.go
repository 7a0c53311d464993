package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/merkle"
)

func addSettlement(store *memStore, outcome float64, decidedAt time.Time) domain.Settlement {
	st := domain.Settlement{
		ID:        uuid.New(),
		MarketID:  uuid.New(),
		Outcome:   outcome,
		DecidedAt: decidedAt,
	}
	store.settlements[st.MarketID] = st
	return st
}

func newTestBatcher(store *memStore, archiver ProofArchiver, bus domain.EventBus, at time.Time) *Batcher {
	b := NewBatcher(store, batchStore{store}, archiver, bus, nil, nil, BatcherConfig{}, testLogger())
	b.now = func() time.Time { return at }
	return b
}

func TestBatcher_NothingUnbatched(t *testing.T) {
	store := newMemStore()
	b := newTestBatcher(store, nil, nil, time.Unix(1_700_000_000, 0).UTC())

	require.NoError(t, b.Run(context.Background()))
	assert.Empty(t, store.batches)
}

func TestBatcher_CommitsAllUnbatched(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()
	bus := &fakeBus{}

	s1 := addSettlement(store, 100.5, now.Add(-2*time.Minute))
	s2 := addSettlement(store, 42.0, now.Add(-time.Minute))

	b := newTestBatcher(store, nil, bus, now)
	require.NoError(t, b.Run(context.Background()))

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	assert.Equal(t, 2, batch.Size)

	// Both settlements belong to the new batch.
	assert.Equal(t, batch.ID, store.batchOf[s1.MarketID])
	assert.Equal(t, batch.ID, store.batchOf[s2.MarketID])

	// The root is reproducible from the settlements in decided_at order.
	leaves := [][32]byte{
		merkle.LeafHash(s1.MarketID, domain.OutcomeMicros(s1.Outcome), uint64(s1.DecidedAt.Unix())),
		merkle.LeafHash(s2.MarketID, domain.OutcomeMicros(s2.Outcome), uint64(s2.DecidedAt.Unix())),
	}
	assert.Equal(t, merkle.Root(leaves), batch.MerkleRoot)

	assert.Equal(t, []string{domain.EventBatchCommitted}, bus.typesSeen())
}

func TestBatcher_AlreadyBatchedExcluded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()

	old := addSettlement(store, 1, now.Add(-time.Hour))
	store.batchOf[old.MarketID] = uuid.New() // already committed elsewhere

	fresh := addSettlement(store, 2, now.Add(-time.Minute))

	b := newTestBatcher(store, nil, nil, now)
	require.NoError(t, b.Run(context.Background()))

	require.Len(t, store.batches, 1)
	assert.Equal(t, 1, store.batches[0].Size)
	assert.Equal(t, store.batches[0].ID, store.batchOf[fresh.MarketID])
}

func TestBatcher_SecondCycleIsNoOp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()
	addSettlement(store, 1, now.Add(-time.Minute))

	b := newTestBatcher(store, nil, nil, now)
	require.NoError(t, b.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))

	assert.Len(t, store.batches, 1)
}

func TestBatcher_LostRaceIsAbsorbed(t *testing.T) {
	// Another replica batched the same settlements between the scan and the
	// insert; the unique membership constraint rejects ours and the cycle
	// moves on quietly.
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()
	bus := &fakeBus{}

	s := addSettlement(store, 1, now.Add(-time.Minute))

	b := NewBatcher(store, racingBatchStore{store, s.MarketID}, nil, bus, nil, nil, BatcherConfig{}, testLogger())
	b.now = func() time.Time { return now }

	require.NoError(t, b.Run(context.Background()))
	assert.Empty(t, store.batches)
	assert.Empty(t, bus.events)
}

// racingBatchStore simulates a concurrent batcher claiming a market just
// before our insert lands.
type racingBatchStore struct {
	*memStore
	contested uuid.UUID
}

func (r racingBatchStore) Create(ctx context.Context, b domain.Batch, marketIDs []uuid.UUID) error {
	r.batchOf[r.contested] = uuid.New()
	return r.CreateBatch(ctx, b, marketIDs)
}

func (r racingBatchStore) List(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	return r.ListBatches(ctx, limit, offset)
}

// captureArchiver records the proof bundle handed to archival.
type captureArchiver struct {
	batches []domain.Batch
	leaves  [][][32]byte
	err     error
}

func (c *captureArchiver) ArchiveBatch(ctx context.Context, b domain.Batch, leaves [][32]byte, members []domain.Settlement) error {
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, b)
	c.leaves = append(c.leaves, leaves)
	return nil
}

func TestBatcher_ArchivesProofBundle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()
	arch := &captureArchiver{}

	addSettlement(store, 7, now.Add(-time.Minute))

	b := newTestBatcher(store, arch, nil, now)
	require.NoError(t, b.Run(context.Background()))

	require.Len(t, arch.batches, 1)
	assert.Equal(t, store.batches[0].ID, arch.batches[0].ID)
	assert.Len(t, arch.leaves[0], 1)
}

func TestBatcher_ArchiveFailureDoesNotFailCycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	store := newMemStore()
	arch := &captureArchiver{err: assert.AnError}

	addSettlement(store, 7, now.Add(-time.Minute))

	b := newTestBatcher(store, arch, nil, now)
	require.NoError(t, b.Run(context.Background()))

	// The batch still committed even though archival failed.
	assert.Len(t, store.batches, 1)
}
