package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTrade() TradeEvent {
	return TradeEvent{
		TradeID:   "t1",
		Symbol:    "BTC-USDT",
		Price:     100,
		Volume:    0.5,
		Side:      SideBuy,
		OrderType: OrderTypeMarket,
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTradeEventValidate(t *testing.T) {
	assert.NoError(t, validTrade().Validate())

	cases := map[string]func(*TradeEvent){
		"empty id":       func(tr *TradeEvent) { tr.TradeID = "" },
		"empty symbol":   func(tr *TradeEvent) { tr.Symbol = "" },
		"zero price":     func(tr *TradeEvent) { tr.Price = 0 },
		"negative price": func(tr *TradeEvent) { tr.Price = -1 },
		"zero volume":    func(tr *TradeEvent) { tr.Volume = 0 },
		"unknown side":   func(tr *TradeEvent) { tr.Side = "short" },
		"unknown type":   func(tr *TradeEvent) { tr.OrderType = "stop" },
		"zero timestamp": func(tr *TradeEvent) { tr.Timestamp = time.Time{} },
	}
	for name, mutate := range cases {
		tr := validTrade()
		mutate(&tr)
		assert.Error(t, tr.Validate(), name)
	}
}

func TestCandleGap(t *testing.T) {
	assert.True(t, Candle{Sealed: true}.Gap())
	assert.False(t, Candle{TradeCount: 2}.Gap())
}

func TestStrategyStatePosition(t *testing.T) {
	assert.False(t, StrategyState{Cash: 100}.Long())
	assert.True(t, StrategyState{Units: 0.1}.Long())

	assert.NoError(t, StrategyState{Cash: 1, Units: 1}.Validate())
	assert.Error(t, StrategyState{Cash: -0.01}.Validate())
	assert.Error(t, StrategyState{Units: -0.01}.Validate())
}
