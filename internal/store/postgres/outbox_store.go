package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// OutboxStore implements domain.OutboxStore using PostgreSQL.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore creates an OutboxStore backed by the given connection pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// ListPending returns up to limit PENDING entries oldest-first, giving FIFO
// fairness across markets.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, payload, status, retries, COALESCE(last_error, ''), created_at, updated_at
		FROM outbox
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		var e domain.OutboxEntry
		var status string
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Payload, &status, &e.Retries, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox entry: %w", err)
		}
		e.Status = domain.OutboxStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pending rows: %w", err)
	}
	return entries, nil
}

// MarkSent records terminal success and clears any prior transient error.
func (s *OutboxStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET status = 'SENT', last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox %s sent: %w", id, err)
	}
	return nil
}

// MarkFailed records a permanent failure (corrupt payload or similar) without
// touching the retry counter, so exhausted retries and permanent failures
// stay distinguishable in the record.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET status = 'FAILED', last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox %s failed: %w", id, err)
	}
	return nil
}

// RecordFailure bumps the retry counter after a failed relay attempt and
// flips the entry to FAILED once retries exceed maxRetries. The update is a
// single conditional statement so concurrent workers cannot double-count.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, reason string, maxRetries int) (domain.OutboxStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE outbox
		SET retries = retries + 1,
		    last_error = $2,
		    status = CASE WHEN retries + 1 > $3 THEN 'FAILED' ELSE 'PENDING' END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status`, id, reason, maxRetries,
	).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("postgres: record outbox %s failure: %w", id, err)
	}
	return domain.OutboxStatus(status), nil
}

// Compile-time interface check.
var _ domain.OutboxStore = (*OutboxStore)(nil)
