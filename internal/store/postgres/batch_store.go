package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// BatchStore implements domain.BatchStore using PostgreSQL.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a BatchStore backed by the given connection pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

// Create inserts the batch row and all membership rows in one transaction.
// The primary key on batch_items.market_id turns a concurrent double-batch
// into a unique violation that rolls the whole batch back, reported as
// domain.ErrAlreadyExists.
func (s *BatchStore) Create(ctx context.Context, b domain.Batch, marketIDs []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin batch %s: %w", b.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO batches (id, merkle_root, created_at)
		VALUES ($1, $2, $3)`,
		b.ID, b.MerkleRoot[:], b.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert batch %s: %w", b.ID, err)
	}

	for _, marketID := range marketIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO batch_items (batch_id, market_id)
			VALUES ($1, $2)`,
			b.ID, marketID,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("postgres: insert batch item %s/%s: %w", b.ID, marketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit batch %s: %w", b.ID, err)
	}
	return nil
}

// List returns batches newest-first with pagination.
func (s *BatchStore) List(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.merkle_root, b.created_at,
		       (SELECT COUNT(*) FROM batch_items i WHERE i.batch_id = b.id)
		FROM batches b
		ORDER BY b.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var root []byte
		if err := rows.Scan(&b.ID, &root, &b.CreatedAt, &b.Size); err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		copy(b.MerkleRoot[:], root)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list batches rows: %w", err)
	}
	return batches, nil
}

// Compile-time interface check.
var _ domain.BatchStore = (*BatchStore)(nil)
