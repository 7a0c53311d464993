package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// ReportService defines the methods that the report handler requires from the
// service layer.
type ReportService interface {
	Submit(ctx context.Context, marketID uuid.UUID, source string, value float64, idempotencyKey string) (domain.Report, error)
	List(ctx context.Context, marketID uuid.UUID) ([]domain.Report, error)
}

// ReportHandler serves report submission and listing endpoints.
type ReportHandler struct {
	reports ReportService
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler with the given service and logger.
func NewReportHandler(reports ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// submitReportRequest is the JSON body for report submission. The idempotency
// key may come from the body or the Idempotency-Key header; the header wins.
type submitReportRequest struct {
	Source         string  `json:"source"`
	Value          float64 `json:"value"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// SubmitReport records an oracle observation for an open market.
// POST /api/markets/{id}/reports
func (h *ReportHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req submitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "idempotency key is required")
		return
	}

	report, err := h.reports.Submit(r.Context(), marketID, source, req.Value, key)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketNotOpen):
			writeError(w, http.StatusBadRequest, "market is not open for reports")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "duplicate report for this idempotency key")
		default:
			h.logger.ErrorContext(r.Context(), "handler: submit report failed",
				slog.String("market_id", marketID.String()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit report")
		}
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// ListReports returns all reports for a market, oldest first.
// GET /api/markets/{id}/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	reports, err := h.reports.List(r.Context(), marketID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reports failed",
			slog.String("market_id", marketID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
