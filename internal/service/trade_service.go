package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// DefaultListLimit caps history queries that do not set a limit.
const DefaultListLimit = 100

// TradeService handles persistence and querying of classified trades.
type TradeService struct {
	trades domain.TradeStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTradeService creates a TradeService. audit may be nil.
func NewTradeService(trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *TradeService {
	return &TradeService{
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// IngestTrades inserts a batch of classified trades and records an audit
// entry for it.
func (s *TradeService) IngestTrades(ctx context.Context, records []domain.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.trades.InsertBatch(ctx, records); err != nil {
		return fmt.Errorf("trade_service: insert batch: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "trades.ingested", map[string]any{
			"count": len(records),
			"pair":  records[0].Pair,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.DebugContext(ctx, "ingested trades", slog.Int("count", len(records)))
	return nil
}

// ListRecent returns persisted trades for pair, newest first.
func (s *TradeService) ListRecent(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if pair == "" {
		return nil, fmt.Errorf("trade_service: list recent: %w: empty pair", domain.ErrInvalidArgument)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	records, err := s.trades.ListRecent(ctx, pair, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list recent %q: %w", pair, err)
	}
	return records, nil
}
