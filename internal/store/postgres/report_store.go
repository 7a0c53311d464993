package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// ReportStore implements domain.ReportStore using PostgreSQL. Report
// idempotency rests entirely on the unique (market_id, idempotency_key)
// constraint; duplicates surface as domain.ErrAlreadyExists regardless of the
// submitted value.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a ReportStore backed by the given connection pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Create inserts a report.
func (s *ReportStore) Create(ctx context.Context, r domain.Report) error {
	const query = `
		INSERT INTO reports (id, market_id, source, value, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.MarketID, r.Source, r.Value, r.IdempotencyKey, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create report for market %s: %w", r.MarketID, err)
	}
	return nil
}

// ListByMarket returns a market's reports oldest-first.
func (s *ReportStore) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]domain.Report, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, source, value, idempotency_key, created_at
		FROM reports
		WHERE market_id = $1
		ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		var r domain.Report
		if err := rows.Scan(&r.ID, &r.MarketID, &r.Source, &r.Value, &r.IdempotencyKey, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reports rows: %w", err)
	}
	return reports, nil
}

// Values returns just the reported values for a market, in submission order.
func (s *ReportStore) Values(ctx context.Context, marketID uuid.UUID) ([]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT value FROM reports
		WHERE market_id = $1
		ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: report values for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan report value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: report values rows: %w", err)
	}
	return values, nil
}

// Compile-time interface check.
var _ domain.ReportStore = (*ReportStore)(nil)
