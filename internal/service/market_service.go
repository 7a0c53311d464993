// Package service sits between the HTTP handlers and the stores. Handlers
// validate transport concerns; services own the domain rules for writes that
// originate outside the schedulers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// MarketService handles market creation and reads.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache // optional
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(markets domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// Create opens a new market. closesAt may be in the past; the lifecycle
// scheduler will close such a market on its next tick.
func (s *MarketService) Create(ctx context.Context, question string, closesAt time.Time) (domain.Market, error) {
	m := domain.Market{
		ID:        uuid.New(),
		Question:  question,
		ClosesAt:  closesAt.UTC(),
		Status:    domain.MarketStatusOpen,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID.String()),
		slog.Time("closes_at", m.ClosesAt),
	)
	return m, nil
}

// Get retrieves a market by ID, checking the cache first and falling back to
// the store on a miss.
func (s *MarketService) Get(ctx context.Context, id uuid.UUID) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id.String()); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", id.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// List returns markets newest-first.
func (s *MarketService) List(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}
