package aggregator

import (
	"context"
	"time"

	"trade_sim/internal/models"
)

// Store — durable mirror свечей и сырых сделок.
// Для одного символа пишет строго один владелец-агрегатор.
type Store interface {
	// InsertTrade records the trade. Returns false when trade_id is already
	// known; the caller must treat such trades as replay duplicates.
	InsertTrade(ctx context.Context, t models.TradeEvent) (bool, error)

	// TradesInWindow returns every known trade with start <= ts < end.
	TradesInWindow(ctx context.Context, symbol string, start, end time.Time) ([]models.TradeEvent, error)

	// UpsertCandle writes the candle keyed by (symbol, window_start).
	UpsertCandle(ctx context.Context, c models.Candle) error

	Candle(ctx context.Context, symbol string, window time.Time) (models.Candle, bool, error)

	// LatestCandle returns the most recent candle, sealed or partial.
	LatestCandle(ctx context.Context, symbol string) (models.Candle, bool, error)

	// SealedCandlesAfter returns sealed candles with window_start > after,
	// ordered by window_start, at most limit rows.
	SealedCandlesAfter(ctx context.Context, symbol string, after time.Time, limit int) ([]models.Candle, error)

	// Offset returns the last committed broker offset for the symbol.
	Offset(ctx context.Context, symbol string) (uint64, bool, error)

	CommitOffset(ctx context.Context, symbol string, offset uint64) error
}

// Sink получает свечи от агрегатора: Persist — durable запись,
// Emit — публикация запечатанных свечей и поправок downstream-потребителям.
type Sink interface {
	Persist(ctx context.Context, c models.Candle) error
	Emit(c models.Candle)
}
