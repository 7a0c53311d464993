package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// fakeMarkets serves fixed markets by ID.
type fakeMarkets struct {
	byID map[uuid.UUID]domain.Market
}

func (f *fakeMarkets) Create(ctx context.Context, m domain.Market) error {
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMarkets) GetByID(ctx context.Context, id uuid.UUID) (domain.Market, error) {
	m, ok := f.byID[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) List(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeMarkets) Count(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeMarkets) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeMarkets) ListResolvable(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	return nil, nil
}

// fakeReports stores reports keyed by (market, idempotency key).
type fakeReports struct {
	created []domain.Report
	seen    map[string]bool
}

func (f *fakeReports) Create(ctx context.Context, r domain.Report) error {
	key := r.MarketID.String() + "/" + r.IdempotencyKey
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return domain.ErrAlreadyExists
	}
	f.seen[key] = true
	f.created = append(f.created, r)
	return nil
}

func (f *fakeReports) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]domain.Report, error) {
	var out []domain.Report
	for _, r := range f.created {
		if r.MarketID == marketID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReports) Values(ctx context.Context, marketID uuid.UUID) ([]float64, error) {
	var out []float64
	for _, r := range f.created {
		if r.MarketID == marketID {
			out = append(out, r.Value)
		}
	}
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func openMarket(f *fakeMarkets) domain.Market {
	m := domain.Market{
		ID:       uuid.New(),
		Question: "q",
		ClosesAt: time.Now().Add(time.Hour).UTC(),
		Status:   domain.MarketStatusOpen,
	}
	f.byID[m.ID] = m
	return m
}

func TestReportSubmit_OK(t *testing.T) {
	markets := &fakeMarkets{byID: map[uuid.UUID]domain.Market{}}
	reports := &fakeReports{}
	m := openMarket(markets)

	svc := NewReportService(markets, reports, discard())
	r, err := svc.Submit(context.Background(), m.ID, "feed-a", 100.5, "key-1")
	require.NoError(t, err)

	assert.Equal(t, m.ID, r.MarketID)
	assert.Equal(t, "feed-a", r.Source)
	assert.Equal(t, 100.5, r.Value)
	assert.Len(t, reports.created, 1)
}

func TestReportSubmit_UnknownMarket(t *testing.T) {
	markets := &fakeMarkets{byID: map[uuid.UUID]domain.Market{}}
	svc := NewReportService(markets, &fakeReports{}, discard())

	_, err := svc.Submit(context.Background(), uuid.New(), "feed-a", 1, "key-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportSubmit_MarketNotOpen(t *testing.T) {
	markets := &fakeMarkets{byID: map[uuid.UUID]domain.Market{}}
	svc := NewReportService(markets, &fakeReports{}, discard())

	for _, status := range []domain.MarketStatus{domain.MarketStatusClosed, domain.MarketStatusResolved} {
		m := openMarket(markets)
		m.Status = status
		markets.byID[m.ID] = m

		_, err := svc.Submit(context.Background(), m.ID, "feed-a", 1, "key-1")
		assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
	}
}

func TestReportSubmit_DuplicateIdempotencyKey(t *testing.T) {
	markets := &fakeMarkets{byID: map[uuid.UUID]domain.Market{}}
	reports := &fakeReports{}
	m := openMarket(markets)

	svc := NewReportService(markets, reports, discard())
	_, err := svc.Submit(context.Background(), m.ID, "feed-a", 100, "key-1")
	require.NoError(t, err)

	// Same key conflicts even with a different value.
	_, err = svc.Submit(context.Background(), m.ID, "feed-a", 999, "key-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// A different key is a fresh report.
	_, err = svc.Submit(context.Background(), m.ID, "feed-b", 100.2, "key-2")
	assert.NoError(t, err)
	assert.Len(t, reports.created, 2)
}

func TestReportList_UnknownMarket(t *testing.T) {
	markets := &fakeMarkets{byID: map[uuid.UUID]domain.Market{}}
	svc := NewReportService(markets, &fakeReports{}, discard())

	_, err := svc.List(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
