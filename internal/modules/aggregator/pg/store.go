package pg

import (
	"context"
	"fmt"
	"time"

	"trade_sim/internal/models"
	"trade_sim/pkg/db"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	volume       DOUBLE PRECISION NOT NULL,
	side         TEXT NOT NULL,
	order_type   TEXT NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	topic_offset BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trades_symbol_ts ON trades (symbol, ts);

CREATE TABLE IF NOT EXISTS candles (
	symbol       TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	open         DOUBLE PRECISION NOT NULL,
	high         DOUBLE PRECISION NOT NULL,
	low          DOUBLE PRECISION NOT NULL,
	close        DOUBLE PRECISION NOT NULL,
	volume       DOUBLE PRECISION NOT NULL,
	trade_count  INTEGER NOT NULL,
	sealed       BOOLEAN NOT NULL,
	PRIMARY KEY (symbol, window_start)
);

CREATE TABLE IF NOT EXISTS feed_offsets (
	symbol       TEXT PRIMARY KEY,
	topic_offset BIGINT NOT NULL
);
`

// CandleStore implement db store
type CandleStore struct {
	conn db.Transaction
}

// New instance
func New(tx db.TxManager) *CandleStore {
	return &CandleStore{conn: tx.Conn()}
}

// EnsureSchema создаёт таблицы при первом запуске.
func (s *CandleStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("CandleStore.EnsureSchema: %w", err)
	}
	return nil
}

func (s *CandleStore) InsertTrade(ctx context.Context, t models.TradeEvent) (inserted bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.InsertTrade: %w", err)
		}
	}()

	tag, err := s.conn.Exec(ctx, `
		INSERT INTO trades (trade_id, symbol, price, volume, side, order_type, ts, topic_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trade_id) DO NOTHING`,
		t.TradeID, t.Symbol, t.Price, t.Volume, string(t.Side), string(t.OrderType), t.Timestamp, int64(t.Offset),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *CandleStore) TradesInWindow(ctx context.Context, symbol string, start, end time.Time) (trades []models.TradeEvent, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.TradesInWindow: %w", err)
		}
	}()

	rows, err := s.conn.Query(ctx, `
		SELECT trade_id, symbol, price, volume, side, order_type, ts, topic_offset
		FROM trades
		WHERE symbol = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts, trade_id`,
		symbol, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.TradeEvent
		var side, orderType string
		var offset int64
		if err := rows.Scan(&t.TradeID, &t.Symbol, &t.Price, &t.Volume, &side, &orderType, &t.Timestamp, &offset); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.OrderType = models.OrderType(orderType)
		t.Offset = uint64(offset)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *CandleStore) UpsertCandle(ctx context.Context, c models.Candle) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.UpsertCandle: %w", err)
		}
	}()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO candles (symbol, window_start, open, high, low, close, volume, trade_count, sealed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, window_start) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count,
			sealed = EXCLUDED.sealed`,
		c.Symbol, c.WindowStart, c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount, c.Sealed,
	)
	return err
}

func (s *CandleStore) Candle(ctx context.Context, symbol string, window time.Time) (c models.Candle, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.Candle: %w", err)
		}
	}()

	row := s.conn.QueryRow(ctx, `
		SELECT symbol, window_start, open, high, low, close, volume, trade_count, sealed
		FROM candles
		WHERE symbol = $1 AND window_start = $2`,
		symbol, window,
	)
	c, err = scanCandle(row)
	if err == pgx.ErrNoRows {
		return models.Candle{}, false, nil
	}
	if err != nil {
		return models.Candle{}, false, err
	}
	return c, true, nil
}

func (s *CandleStore) LatestCandle(ctx context.Context, symbol string) (c models.Candle, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.LatestCandle: %w", err)
		}
	}()

	row := s.conn.QueryRow(ctx, `
		SELECT symbol, window_start, open, high, low, close, volume, trade_count, sealed
		FROM candles
		WHERE symbol = $1
		ORDER BY window_start DESC
		LIMIT 1`,
		symbol,
	)
	c, err = scanCandle(row)
	if err == pgx.ErrNoRows {
		return models.Candle{}, false, nil
	}
	if err != nil {
		return models.Candle{}, false, err
	}
	return c, true, nil
}

func (s *CandleStore) SealedCandlesAfter(ctx context.Context, symbol string, after time.Time, limit int) (candles []models.Candle, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.SealedCandlesAfter: %w", err)
		}
	}()

	rows, err := s.conn.Query(ctx, `
		SELECT symbol, window_start, open, high, low, close, volume, trade_count, sealed
		FROM candles
		WHERE symbol = $1 AND window_start > $2 AND sealed
		ORDER BY window_start
		LIMIT $3`,
		symbol, after, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

func (s *CandleStore) Offset(ctx context.Context, symbol string) (offset uint64, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.Offset: %w", err)
		}
	}()

	var v int64
	row := s.conn.QueryRow(ctx, `SELECT topic_offset FROM feed_offsets WHERE symbol = $1`, symbol)
	if err = row.Scan(&v); err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(v), true, nil
}

func (s *CandleStore) CommitOffset(ctx context.Context, symbol string, offset uint64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("CandleStore.CommitOffset: %w", err)
		}
	}()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO feed_offsets (symbol, topic_offset)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET topic_offset = GREATEST(feed_offsets.topic_offset, EXCLUDED.topic_offset)`,
		symbol, int64(offset),
	)
	return err
}

func scanCandle(row pgx.Row) (models.Candle, error) {
	var c models.Candle
	err := row.Scan(&c.Symbol, &c.WindowStart, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.TradeCount, &c.Sealed)
	return c, err
}
