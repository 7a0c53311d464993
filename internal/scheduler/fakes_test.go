package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// memStore is a single in-memory implementation of every store interface the
// schedulers touch. Tests drive the loops through it and inspect the
// resulting state directly.
type memStore struct {
	markets     map[uuid.UUID]domain.Market
	reports     map[uuid.UUID][]domain.Report
	settlements map[uuid.UUID]domain.Settlement // keyed by market id
	outbox      []domain.OutboxEntry
	batches     []domain.Batch
	batchOf     map[uuid.UUID]uuid.UUID // market id -> batch id

	finalizeErr  error // injected Finalize failure
	finalizeHook func()
}

func newMemStore() *memStore {
	return &memStore{
		markets:     make(map[uuid.UUID]domain.Market),
		reports:     make(map[uuid.UUID][]domain.Report),
		settlements: make(map[uuid.UUID]domain.Settlement),
		batchOf:     make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *memStore) addMarket(status domain.MarketStatus, closesAt time.Time) domain.Market {
	m := domain.Market{
		ID:        uuid.New(),
		Question:  "q",
		ClosesAt:  closesAt,
		Status:    status,
		CreatedAt: closesAt.Add(-time.Hour),
	}
	s.markets[m.ID] = m
	return m
}

func (s *memStore) addReports(marketID uuid.UUID, values ...float64) {
	for i, v := range values {
		s.reports[marketID] = append(s.reports[marketID], domain.Report{
			ID:        uuid.New(),
			MarketID:  marketID,
			Source:    "src",
			Value:     v,
			CreatedAt: time.Unix(int64(1_700_000_000+i), 0).UTC(),
		})
	}
}

// --- domain.MarketStore ---

func (s *memStore) Create(ctx context.Context, m domain.Market) error {
	s.markets[m.ID] = m
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memStore) List(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	return nil, nil
}

func (s *memStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.markets)), nil
}

func (s *memStore) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, m := range s.markets {
		if m.Status == domain.MarketStatusOpen && !m.ClosesAt.After(now) {
			m.Status = domain.MarketStatusClosed
			s.markets[id] = m
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListResolvable(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusClosed && !m.ClosesAt.After(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosesAt.Before(out[j].ClosesAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- domain.ReportStore ---

func (s *memStore) CreateReport(ctx context.Context, r domain.Report) error {
	s.reports[r.MarketID] = append(s.reports[r.MarketID], r)
	return nil
}

func (s *memStore) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]domain.Report, error) {
	return s.reports[marketID], nil
}

func (s *memStore) Values(ctx context.Context, marketID uuid.UUID) ([]float64, error) {
	var out []float64
	for _, r := range s.reports[marketID] {
		out = append(out, r.Value)
	}
	return out, nil
}

// --- domain.SettlementStore ---

func (s *memStore) Finalize(ctx context.Context, st domain.Settlement, entry domain.OutboxEntry) error {
	if s.finalizeHook != nil {
		s.finalizeHook()
	}
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	m, ok := s.markets[st.MarketID]
	if !ok || m.Status != domain.MarketStatusClosed {
		return domain.ErrAlreadyExists
	}
	m.Status = domain.MarketStatusResolved
	s.markets[st.MarketID] = m
	s.settlements[st.MarketID] = st
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *memStore) GetByMarket(ctx context.Context, marketID uuid.UUID) (domain.Settlement, error) {
	st, ok := s.settlements[marketID]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memStore) ListUnbatched(ctx context.Context) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for marketID, st := range s.settlements {
		if _, batched := s.batchOf[marketID]; !batched {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DecidedAt.Equal(out[j].DecidedAt) {
			return out[i].DecidedAt.Before(out[j].DecidedAt)
		}
		return out[i].MarketID.String() < out[j].MarketID.String()
	})
	return out, nil
}

// --- domain.OutboxStore ---

func (s *memStore) ListPending(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	var out []domain.OutboxEntry
	for _, e := range s.outbox {
		if e.Status == domain.OutboxStatusPending {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox[i].Status = domain.OutboxStatusSent
			s.outbox[i].LastError = ""
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox[i].Status = domain.OutboxStatusFailed
			s.outbox[i].LastError = reason
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) RecordFailure(ctx context.Context, id uuid.UUID, reason string, maxRetries int) (domain.OutboxStatus, error) {
	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox[i].Retries++
			s.outbox[i].LastError = reason
			if s.outbox[i].Retries > maxRetries {
				s.outbox[i].Status = domain.OutboxStatusFailed
			}
			return s.outbox[i].Status, nil
		}
	}
	return "", domain.ErrNotFound
}

func (s *memStore) entry(id uuid.UUID) domain.OutboxEntry {
	for _, e := range s.outbox {
		if e.ID == id {
			return e
		}
	}
	return domain.OutboxEntry{}
}

// --- domain.BatchStore ---

func (s *memStore) CreateBatch(ctx context.Context, b domain.Batch, marketIDs []uuid.UUID) error {
	for _, marketID := range marketIDs {
		if _, batched := s.batchOf[marketID]; batched {
			return domain.ErrAlreadyExists
		}
	}
	for _, marketID := range marketIDs {
		s.batchOf[marketID] = b.ID
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *memStore) ListBatches(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	return s.batches, nil
}

// reportStore, settlementStore, batchStore adapt memStore's renamed methods
// back onto the interfaces whose method names collide on one struct.
type reportStore struct{ *memStore }

func (r reportStore) Create(ctx context.Context, rep domain.Report) error {
	return r.CreateReport(ctx, rep)
}

type batchStore struct{ *memStore }

func (b batchStore) Create(ctx context.Context, batch domain.Batch, marketIDs []uuid.UUID) error {
	return b.CreateBatch(ctx, batch, marketIDs)
}

func (b batchStore) List(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	return b.ListBatches(ctx, limit, offset)
}

// fakeLedger records submissions and fails on demand.
type fakeLedger struct {
	submissions []fakeSubmission
	err         error
}

type fakeSubmission struct {
	marketHash    [32]byte
	leaf          [32]byte
	outcomeMicros uint64
	decidedAt     uint64
}

func (l *fakeLedger) Submit(ctx context.Context, marketHash, leaf [32]byte, outcome, decidedAt uint64) error {
	if l.err != nil {
		return l.err
	}
	l.submissions = append(l.submissions, fakeSubmission{marketHash, leaf, outcome, decidedAt})
	return nil
}

// fakeBus captures published events.
type fakeBus struct {
	events []domain.Event
}

func (b *fakeBus) Publish(ctx context.Context, ev domain.Event) error {
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event)
	close(ch)
	return ch, func() {}, nil
}

func (b *fakeBus) typesSeen() []string {
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Type)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
