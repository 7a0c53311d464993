package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// SettlementView is the audit-friendly read model for a resolved market: the
// settlement itself, every report that fed it, and a digest an external
// verifier can recompute from the same fields.
type SettlementView struct {
	Settlement domain.Settlement `json:"settlement"`
	Reports    []domain.Report   `json:"reports"`
	AuditHash  string            `json:"audit_hash"`
}

// SettlementService serves settlement reads.
type SettlementService struct {
	settlements domain.SettlementStore
	reports     domain.ReportStore
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(settlements domain.SettlementStore, reports domain.ReportStore, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		settlements: settlements,
		reports:     reports,
		logger:      logger.With(slog.String("component", "settlement_service")),
	}
}

// Get returns the settlement view for a market, or domain.ErrNotFound while
// the market is unresolved.
func (s *SettlementService) Get(ctx context.Context, marketID uuid.UUID) (SettlementView, error) {
	settlement, err := s.settlements.GetByMarket(ctx, marketID)
	if err != nil {
		return SettlementView{}, err
	}

	reports, err := s.reports.ListByMarket(ctx, marketID)
	if err != nil {
		return SettlementView{}, err
	}

	digest := AuditDigest(settlement, reports)
	return SettlementView{
		Settlement: settlement,
		Reports:    reports,
		AuditHash:  hex.EncodeToString(digest[:]),
	}, nil
}

// AuditDigest computes the canonical digest over a settlement and its
// reports, oldest report first. The encoding is fixed-width binary
// throughout (values as micro-units, timestamps as unix seconds, sources
// length-prefixed) so independent verifiers reproduce it bit for bit.
func AuditDigest(s domain.Settlement, reports []domain.Report) [32]byte {
	h := sha256.New()

	var u64 [8]byte

	h.Write(s.MarketID[:])
	binary.BigEndian.PutUint64(u64[:], domain.OutcomeMicros(s.Outcome))
	h.Write(u64[:])
	binary.BigEndian.PutUint64(u64[:], uint64(s.DecidedAt.Unix()))
	h.Write(u64[:])

	var u32 [4]byte
	for _, r := range reports {
		h.Write(r.ID[:])
		binary.BigEndian.PutUint32(u32[:], uint32(len(r.Source)))
		h.Write(u32[:])
		h.Write([]byte(r.Source))
		binary.BigEndian.PutUint64(u64[:], domain.OutcomeMicros(r.Value))
		h.Write(u64[:])
		binary.BigEndian.PutUint64(u64[:], uint64(r.CreatedAt.Unix()))
		h.Write(u64[:])
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}
