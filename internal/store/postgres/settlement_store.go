package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Finalize performs the exactly-once resolution transaction: conditional
// CLOSED -> RESOLVED flip, settlement insert, and outbox enqueue. The flip
// runs first and its affected-row count gates the rest, so a concurrent tick
// that lost the race rolls back without writing anything and gets
// domain.ErrAlreadyExists.
func (s *SettlementStore) Finalize(ctx context.Context, st domain.Settlement, entry domain.OutboxEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin finalize %s: %w", st.MarketID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE markets
		SET status = 'RESOLVED'
		WHERE id = $1 AND status = 'CLOSED'`, st.MarketID)
	if err != nil {
		return fmt.Errorf("postgres: finalize flip %s: %w", st.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO settlements (id, market_id, outcome, decided_at)
		VALUES ($1, $2, $3, $4)`,
		st.ID, st.MarketID, st.Outcome, st.DecidedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert settlement %s: %w", st.MarketID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, market_id, payload, status, retries, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', 0, NULL, $4, $4)`,
		entry.ID, entry.MarketID, entry.Payload, entry.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: enqueue outbox %s: %w", st.MarketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit finalize %s: %w", st.MarketID, err)
	}
	return nil
}

// GetByMarket retrieves the settlement for a market.
func (s *SettlementStore) GetByMarket(ctx context.Context, marketID uuid.UUID) (domain.Settlement, error) {
	var st domain.Settlement
	err := s.pool.QueryRow(ctx, `
		SELECT id, market_id, outcome, decided_at
		FROM settlements
		WHERE market_id = $1`, marketID,
	).Scan(&st.ID, &st.MarketID, &st.Outcome, &st.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", marketID, err)
	}
	return st, nil
}

// ListUnbatched returns settlements not yet committed to any batch, in the
// documented batch order: decided_at ascending, market_id as tiebreak.
func (s *SettlementStore) ListUnbatched(ctx context.Context) ([]domain.Settlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.market_id, s.outcome, s.decided_at
		FROM settlements s
		LEFT JOIN batch_items b ON s.market_id = b.market_id
		WHERE b.market_id IS NULL
		ORDER BY s.decided_at ASC, s.market_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unbatched settlements: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		var st domain.Settlement
		if err := rows.Scan(&st.ID, &st.MarketID, &st.Outcome, &st.DecidedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan unbatched settlement: %w", err)
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unbatched rows: %w", err)
	}
	return settlements, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
