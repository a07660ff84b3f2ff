package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeSelectCols = `id, symbol, price, quantity, block_number, event_index,
	executed_at, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Price, &t.Quantity,
			&t.BlockNumber, &t.EventIndex, &t.ExecutedAt, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts multiple trades efficiently using pgx Batch. Trades
// replayed from an already-seen chain position (same block_number and
// event_index) are silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			symbol, price, quantity,
			block_number, event_index, executed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6
		) ON CONFLICT (block_number, event_index) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.Symbol, t.Price, t.Quantity,
			t.BlockNumber, t.EventIndex, t.ExecutedAt,
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

// GetLastTimestamp returns the most recent trade execution time, or the zero
// time if no trades exist.
func (s *TradeStore) GetLastTimestamp(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(executed_at) FROM trades").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last trade timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// ListBySymbol returns trades for a given symbol with pagination and optional
// time filtering, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY executed_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by symbol: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by symbol: %w", err)
	}
	return trades, nil
}

// ListBars buckets persisted trades into OHLCV bars of bucketSeconds width
// over [from, to], oldest first. Bucket boundaries are epoch-aligned, matching
// the live aggregator, so historical and streamed bars line up.
func (s *TradeStore) ListBars(ctx context.Context, symbol string, bucketSeconds int64, from, to time.Time) ([]domain.TvBar, error) {
	if bucketSeconds <= 0 {
		return nil, fmt.Errorf("postgres: list bars: invalid bucket width %d", bucketSeconds)
	}

	const query = `
		SELECT
			(FLOOR(EXTRACT(EPOCH FROM executed_at) / $2) * $2)::BIGINT AS bucket,
			(ARRAY_AGG(price ORDER BY executed_at ASC, id ASC))[1]    AS open,
			MAX(price)                                                AS high,
			MIN(price)                                                AS low,
			(ARRAY_AGG(price ORDER BY executed_at DESC, id DESC))[1]  AS close,
			SUM(quantity)                                             AS volume
		FROM trades
		WHERE symbol = $1 AND executed_at >= $3 AND executed_at <= $4
		GROUP BY bucket
		ORDER BY bucket ASC`

	rows, err := s.pool.Query(ctx, query, symbol, bucketSeconds, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.TvBar
	for rows.Next() {
		var (
			bucket        int64
			o, h, l, c, v decimal.Decimal
		)
		if err := rows.Scan(&bucket, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan bar: %w", err)
		}
		bars = append(bars, domain.TvBar{
			Time:   bucket,
			Open:   o.InexactFloat64(),
			High:   h.InexactFloat64(),
			Low:    l.InexactFloat64(),
			Close:  c.InexactFloat64(),
			Volume: v.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bars rows: %w", err)
	}
	return bars, nil
}

// LastTradeTimeBefore returns the executed-at time of the most recent trade
// strictly before the given instant, or the zero time if none exists.
func (s *TradeStore) LastTradeTimeBefore(ctx context.Context, symbol string, before time.Time) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(executed_at) FROM trades WHERE symbol = $1 AND executed_at < $2",
		symbol, before,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last trade time before: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// ListBefore returns trades executed strictly before the given time, oldest
// first, for archiving. A limit of zero means no limit.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE executed_at < $1 ORDER BY executed_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades executed before the given time. Returns the
// number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
