package models

import "time"

// Candle — OHLCV за одно фиксированное окно. key = (Symbol, WindowStart).
// Мутабельна только пока окно открыто либо в пределах grace-периода.
type Candle struct {
	Symbol      string    `json:"symbol"`
	WindowStart time.Time `json:"window_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	TradeCount  int       `json:"trade_count"`
	Sealed      bool      `json:"sealed"`
}

// Gap reports whether this is a synthesized zero-activity candle.
func (c Candle) Gap() bool {
	return c.TradeCount == 0
}

// Equal compares the persisted fields, ignoring nothing.
func (c Candle) Equal(other Candle) bool {
	return c.Symbol == other.Symbol &&
		c.WindowStart.Equal(other.WindowStart) &&
		c.Open == other.Open &&
		c.High == other.High &&
		c.Low == other.Low &&
		c.Close == other.Close &&
		c.Volume == other.Volume &&
		c.TradeCount == other.TradeCount &&
		c.Sealed == other.Sealed
}
