package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Prices and
// amounts travel as text so NUMERIC precision is never squeezed through
// float64.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, exchange, pair, trade_id, price::text, amount::text, direction, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t             domain.TradeRecord
			price, amount string
			direction     string
		)
		if err := rows.Scan(
			&t.RowID, &t.Exchange, &t.Pair, &t.TradeID,
			&price, &amount, &direction, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		var err error
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("price %q: %w", price, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("amount %q: %w", amount, err)
		}
		if t.Direction, err = domain.ParseDirection(direction); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts trades using a pgx Batch. Trades that carry an
// exchange id already stored for the same pair are skipped.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (exchange, pair, trade_id, price, amount, direction, executed_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (exchange, pair, trade_id) WHERE trade_id IS NOT NULL DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.Exchange, t.Pair, t.TradeID,
			t.Price.String(), t.Amount.String(),
			t.Direction.String(), t.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// buildListRecent returns the query and args for ListRecent.
func buildListRecent(pair string, opts domain.ListOpts) (string, []any) {
	return pagedQuery(`SELECT `+tradeSelectCols+` FROM trades WHERE pair = $1`, []any{pair}, "executed_at", opts)
}

// ListRecent returns trades for pair, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := buildListRecent(pair, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades %s: %w", pair, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns every trade executed before the cutoff, oldest first.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE executed_at < $1 ORDER BY executed_at, id`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes trades executed before the cutoff and returns how
// many rows were deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
