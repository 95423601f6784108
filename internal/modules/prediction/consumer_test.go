package prediction

import (
	"context"
	"testing"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/health/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var predWindow0 = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

type memPredictions struct {
	recs map[string]models.PredictionRecord
}

func newMemPredictions() *memPredictions {
	return &memPredictions{recs: map[string]models.PredictionRecord{}}
}

func (s *memPredictions) key(symbol string, window time.Time) string {
	return symbol + "/" + window.UTC().Format(time.RFC3339)
}

func (s *memPredictions) Upsert(_ context.Context, rec models.PredictionRecord) error {
	key := s.key(rec.Symbol, rec.WindowStart)
	if old, ok := s.recs[key]; ok && old.ModelVersion > rec.ModelVersion {
		return nil
	}
	s.recs[key] = rec
	return nil
}

func (s *memPredictions) Get(_ context.Context, symbol string, window time.Time) (models.PredictionRecord, bool, error) {
	rec, ok := s.recs[s.key(symbol, window)]
	return rec, ok, nil
}

func candle(close, high, low, volume float64, window time.Time) models.Candle {
	return models.Candle{
		Symbol:      "BTC-USDT",
		WindowStart: window,
		Open:        close,
		High:        high,
		Low:         low,
		Close:       close,
		Volume:      volume,
		TradeCount:  1,
		Sealed:      true,
	}
}

func TestConsumerScoresEverySealedCandle(t *testing.T) {
	ctx := context.Background()
	store := newMemPredictions()
	c := NewConsumer(store, Heuristic{ModelVersion: 1}, service.NewState(), 10)

	require.NoError(t, c.onCandle(ctx, candle(100, 101, 99, 5, predWindow0)))
	require.NoError(t, c.onCandle(ctx, candle(103, 104, 100, 6, predWindow0.Add(time.Minute))))
	require.NoError(t, c.onCandle(ctx, candle(101, 103, 100, 4, predWindow0.Add(2*time.Minute))))

	for i := 0; i < 3; i++ {
		rec, ok, err := store.Get(ctx, "BTC-USDT", predWindow0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, ok, "window %d must be scored", i)
		assert.Equal(t, 1, rec.ModelVersion)
		assert.GreaterOrEqual(t, rec.Confidence, 0.05)
		assert.LessOrEqual(t, rec.Confidence, 0.95)
	}

	// растущий close даёт UP на втором окне
	rec, _, err := store.Get(ctx, "BTC-USDT", predWindow0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionUp, rec.Direction)

	// падение на третьем — DOWN
	rec, _, err = store.Get(ctx, "BTC-USDT", predWindow0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, rec.Direction)
}

func TestConsumerRescoresCorrections(t *testing.T) {
	ctx := context.Background()
	store := newMemPredictions()
	c := NewConsumer(store, Heuristic{ModelVersion: 1}, service.NewState(), 10)

	require.NoError(t, c.onCandle(ctx, candle(100, 101, 99, 5, predWindow0)))
	require.NoError(t, c.onCandle(ctx, candle(110, 111, 99, 5, predWindow0.Add(time.Minute))))

	before, _, err := store.Get(ctx, "BTC-USDT", predWindow0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, models.DirectionUp, before.Direction)

	// поправка того же окна: close теперь ниже предыдущего
	require.NoError(t, c.onCandle(ctx, candle(95, 111, 94, 7, predWindow0.Add(time.Minute))))

	after, _, err := store.Get(ctx, "BTC-USDT", predWindow0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, after.Direction)
}

func TestConsumerCorrectionDoesNotAdvanceHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemPredictions()
	c := NewConsumer(store, Heuristic{ModelVersion: 1}, service.NewState(), 10)

	require.NoError(t, c.onCandle(ctx, candle(100, 101, 99, 5, predWindow0)))
	require.NoError(t, c.onCandle(ctx, candle(105, 106, 99, 5, predWindow0.Add(time.Minute))))

	h := c.hist["BTC-USDT"]
	depthBefore := len(h.closes)

	// поправка старого окна не наращивает историю признаков
	require.NoError(t, c.onCandle(ctx, candle(101, 106, 99, 5, predWindow0)))
	assert.Equal(t, depthBefore, len(h.closes))
	assert.Equal(t, predWindow0.Add(time.Minute), h.lastWindow)
}

func TestHeuristicIsDeterministic(t *testing.T) {
	f := Features{Return: 0.02, Range: 0.05, VolumeRatio: 1.5, Momentum: 0.01}

	dir1, conf1, err := Heuristic{ModelVersion: 1}.Score(context.Background(), f)
	require.NoError(t, err)
	dir2, conf2, err := Heuristic{ModelVersion: 1}.Score(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, dir1, dir2)
	assert.Equal(t, conf1, conf2)
	assert.Equal(t, models.DirectionUp, dir1)
}

func TestConsumerHistoryBounded(t *testing.T) {
	ctx := context.Background()
	store := newMemPredictions()
	c := NewConsumer(store, Heuristic{ModelVersion: 1}, service.NewState(), 3)

	for i := 0; i < 10; i++ {
		w := predWindow0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, c.onCandle(ctx, candle(100+float64(i), 101+float64(i), 99, 5, w)))
	}

	h := c.hist["BTC-USDT"]
	assert.Len(t, h.closes, 3)
	assert.Len(t, h.volumes, 3)
	assert.Len(t, h.returns, 3)
}
