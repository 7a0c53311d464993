package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
	"github.com/veritaslabs/oraclesettle/internal/service"
)

// SettlementService defines the methods that the settlement handler requires
// from the service layer.
type SettlementService interface {
	Get(ctx context.Context, marketID uuid.UUID) (service.SettlementView, error)
}

// BatchService lists committed Merkle batches.
type BatchService interface {
	List(ctx context.Context, limit, offset int) ([]domain.Batch, error)
}

// SettlementHandler serves settlement and batch read endpoints.
type SettlementHandler struct {
	settlements SettlementService
	batches     BatchService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given services.
func NewSettlementHandler(settlements SettlementService, batches BatchService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		batches:     batches,
		logger:      logger,
	}
}

// GetSettlement returns the settlement for a resolved market.
// GET /api/markets/{id}/settlement
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	view, err := h.settlements.Get(r.Context(), marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market is not resolved")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get settlement failed",
			slog.String("market_id", marketID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get settlement")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// batchResponse is the public shape of a committed batch.
type batchResponse struct {
	ID         uuid.UUID `json:"id"`
	MerkleRoot string    `json:"merkle_root"`
	Size       int       `json:"size"`
	CreatedAt  string    `json:"created_at"`
}

// ListBatches returns committed batches, newest first.
// GET /api/batches?limit=50&offset=0
func (h *SettlementHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	batches, err := h.batches.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list batches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}

	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchResponse{
			ID:         b.ID,
			MerkleRoot: hex.EncodeToString(b.MerkleRoot[:]),
			Size:       b.Size,
			CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"batches": out})
}
