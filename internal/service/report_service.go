package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// ReportService handles report submission and reads.
type ReportService struct {
	markets domain.MarketStore
	reports domain.ReportStore
	logger  *slog.Logger
}

// NewReportService creates a ReportService.
func NewReportService(markets domain.MarketStore, reports domain.ReportStore, logger *slog.Logger) *ReportService {
	return &ReportService{
		markets: markets,
		reports: reports,
		logger:  logger.With(slog.String("component", "report_service")),
	}
}

// Submit records one source's value for a market. It returns
// domain.ErrNotFound for an unknown market, domain.ErrMarketNotOpen once the
// market has closed, and domain.ErrAlreadyExists when the idempotency key was
// already used for this market, whatever value it carried. The status check
// is advisory; the authoritative guard is the unique constraint, and a market
// closing between check and insert merely admits one final report, which the
// resolution algorithm reads like any other.
func (s *ReportService) Submit(ctx context.Context, marketID uuid.UUID, source string, value float64, idempotencyKey string) (domain.Report, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Report{}, err
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.Report{}, domain.ErrMarketNotOpen
	}

	r := domain.Report{
		ID:             uuid.New(),
		MarketID:       marketID,
		Source:         source,
		Value:          value,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.reports.Create(ctx, r); err != nil {
		return domain.Report{}, err
	}

	s.logger.InfoContext(ctx, "report submitted",
		slog.String("market_id", marketID.String()),
		slog.String("source", source),
		slog.Float64("value", value),
	)
	return r, nil
}

// List returns a market's reports oldest-first. Unknown markets yield
// domain.ErrNotFound.
func (s *ReportService) List(ctx context.Context, marketID uuid.UUID) ([]domain.Report, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	return s.reports.ListByMarket(ctx, marketID)
}
