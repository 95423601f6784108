package strategy

import (
	"testing"
	"time"

	"trade_sim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedCandle(close float64, window time.Time) models.Candle {
	return models.Candle{
		Symbol:      "BTC-USDT",
		WindowStart: window,
		Open:        close,
		High:        close,
		Low:         close,
		Close:       close,
		Volume:      1,
		TradeCount:  1,
		Sealed:      true,
	}
}

func pred(dir models.Direction, confidence float64) models.PredictionRecord {
	return models.PredictionRecord{
		Symbol:     "BTC-USDT",
		Direction:  dir,
		Confidence: confidence,
	}
}

func TestDynamicBuysFullCashOnUp(t *testing.T) {
	d := NewDynamic()
	st := models.StrategyState{StrategyID: models.StrategyDynamic, Cash: 1000}

	got := d.Decide(st, pred(models.DirectionUp, 0.6), sealedCandle(100, time.Time{}))
	require.Equal(t, models.ActionBuy, got.Action)
	assert.InDelta(t, 10.0, got.Quantity, 1e-12)
}

func TestDynamicSellsAllOnDown(t *testing.T) {
	d := NewDynamic()
	st := models.StrategyState{StrategyID: models.StrategyDynamic, Units: 10}

	got := d.Decide(st, pred(models.DirectionDown, 0.6), sealedCandle(90, time.Time{}))
	require.Equal(t, models.ActionSell, got.Action)
	assert.InDelta(t, 10.0, got.Quantity, 1e-12)
}

func TestDynamicHoldsWithoutTransition(t *testing.T) {
	d := NewDynamic()

	// UP пока LONG — не переход
	long := models.StrategyState{Units: 10}
	assert.Equal(t, models.ActionHold, d.Decide(long, pred(models.DirectionUp, 0.9), sealedCandle(100, time.Time{})).Action)

	// DOWN пока IDLE — не переход
	idle := models.StrategyState{Cash: 1000}
	assert.Equal(t, models.ActionHold, d.Decide(idle, pred(models.DirectionDown, 0.9), sealedCandle(100, time.Time{})).Action)
}

func TestDynamicHoldsOnZeroClose(t *testing.T) {
	d := NewDynamic()
	st := models.StrategyState{Cash: 1000}
	got := d.Decide(st, pred(models.DirectionUp, 0.9), sealedCandle(0, time.Time{}))
	assert.Equal(t, models.ActionHold, got.Action)
}

func TestBalancedWaitsForConfirmedTrend(t *testing.T) {
	b := NewBalanced(BalancedConfig{Windows: 3, Fraction: 0.5})
	st := models.StrategyState{StrategyID: models.StrategyBalanced, Cash: 1000}

	up := pred(models.DirectionUp, 0.6)
	c := sealedCandle(100, time.Time{})

	assert.Equal(t, models.ActionHold, b.Decide(st, up, c).Action)
	assert.Equal(t, models.ActionHold, b.Decide(st, up, c).Action)

	got := b.Decide(st, up, c)
	require.Equal(t, models.ActionBuy, got.Action)
	// половина кэша по close
	assert.InDelta(t, 5.0, got.Quantity, 1e-12)
}

func TestBalancedStreakResetsOnFlip(t *testing.T) {
	b := NewBalanced(BalancedConfig{Windows: 2, Fraction: 0.5})
	st := models.StrategyState{Cash: 1000, Units: 4}
	c := sealedCandle(100, time.Time{})

	assert.Equal(t, models.ActionHold, b.Decide(st, pred(models.DirectionUp, 0.6), c).Action)
	// смена направления сбрасывает счётчик
	assert.Equal(t, models.ActionHold, b.Decide(st, pred(models.DirectionDown, 0.6), c).Action)

	got := b.Decide(st, pred(models.DirectionDown, 0.6), c)
	require.Equal(t, models.ActionSell, got.Action)
	assert.InDelta(t, 2.0, got.Quantity, 1e-12)
}

func TestUltraBuysOnFirstUp(t *testing.T) {
	u := NewUltraAggressive(0.8)
	st := models.StrategyState{Cash: 1000}

	got := u.Decide(st, pred(models.DirectionUp, 0.1), sealedCandle(100, time.Time{}))
	require.Equal(t, models.ActionBuy, got.Action)
	assert.InDelta(t, 10.0, got.Quantity, 1e-12)
}

func TestUltraGatesRepeatUpByConfidence(t *testing.T) {
	u := NewUltraAggressive(0.8)
	c := sealedCandle(100, time.Time{})

	idle := models.StrategyState{Cash: 1000}
	require.Equal(t, models.ActionBuy, u.Decide(idle, pred(models.DirectionUp, 0.5), c).Action)

	// повтор UP в LONG при низкой уверенности — HOLD
	long := models.StrategyState{Cash: 300, Units: 7}
	assert.Equal(t, models.ActionHold, u.Decide(long, pred(models.DirectionUp, 0.5), c).Action)

	// повтор UP при уверенности выше порога — докупка остатком кэша
	got := u.Decide(long, pred(models.DirectionUp, 0.9), c)
	require.Equal(t, models.ActionBuy, got.Action)
	assert.InDelta(t, 3.0, got.Quantity, 1e-12)
}

func TestUltraSellsAllOnDown(t *testing.T) {
	u := NewUltraAggressive(0.8)
	st := models.StrategyState{Units: 7}

	got := u.Decide(st, pred(models.DirectionDown, 0.1), sealedCandle(100, time.Time{}))
	require.Equal(t, models.ActionSell, got.Action)
	assert.InDelta(t, 7.0, got.Quantity, 1e-12)
}

func TestUltraHoldsWhenNothingToDo(t *testing.T) {
	u := NewUltraAggressive(0.8)
	c := sealedCandle(100, time.Time{})

	assert.Equal(t, models.ActionHold, u.Decide(models.StrategyState{}, pred(models.DirectionDown, 0.9), c).Action)
	assert.Equal(t, models.ActionHold, u.Decide(models.StrategyState{Units: 5}, pred(models.DirectionUp, 0.9), c).Action)
}

func TestDynamicRoundTripMatchesExample(t *testing.T) {
	// Сквозной сценарий: 1000 кэша, UP@100 — покупка 10 юнитов,
	// затем DOWN@90 — продажа всех, кэш 900.
	d := NewDynamic()
	st := models.StrategyState{StrategyID: models.StrategyDynamic, Cash: 1000}

	buy := d.Decide(st, pred(models.DirectionUp, 0.7), sealedCandle(100, time.Time{}))
	require.Equal(t, models.ActionBuy, buy.Action)
	st.Cash -= buy.Quantity * 100
	st.Units += buy.Quantity
	assert.InDelta(t, 0.0, st.Cash, 1e-9)
	assert.InDelta(t, 10.0, st.Units, 1e-9)

	sell := d.Decide(st, pred(models.DirectionDown, 0.7), sealedCandle(90, time.Time{}))
	require.Equal(t, models.ActionSell, sell.Action)
	st.Cash += sell.Quantity * 90
	st.Units -= sell.Quantity
	assert.InDelta(t, 900.0, st.Cash, 1e-9)
	assert.InDelta(t, 0.0, st.Units, 1e-9)
}
