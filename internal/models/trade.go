package models

import (
	"fmt"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TradeEvent — одна сделка из брокерского топика. Неизменяема после приёма.
type TradeEvent struct {
	TradeID   string    `json:"trade_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Side      Side      `json:"side"`
	OrderType OrderType `json:"order_type"`
	Timestamp time.Time `json:"timestamp"`

	// Offset — позиция в топике брокера, нужна для resume после рестарта.
	Offset uint64 `json:"offset"`
}

// Validate rejects malformed events before they reach the aggregation path.
func (t TradeEvent) Validate() error {
	if t.TradeID == "" {
		return fmt.Errorf("trade without id")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s without symbol", t.TradeID)
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade %s has non-positive price %f", t.TradeID, t.Price)
	}
	if t.Volume <= 0 {
		return fmt.Errorf("trade %s has non-positive volume %f", t.TradeID, t.Volume)
	}
	switch t.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("trade %s has unknown side %q", t.TradeID, t.Side)
	}
	switch t.OrderType {
	case OrderTypeMarket, OrderTypeLimit:
	default:
		return fmt.Errorf("trade %s has unknown order type %q", t.TradeID, t.OrderType)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("trade %s without timestamp", t.TradeID)
	}
	return nil
}
