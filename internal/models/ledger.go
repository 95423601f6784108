package models

import "time"

// TradeLogEntry — запись журнала сделок. Неизменяема после записи,
// уникальна по (StrategyID, WindowStart).
type TradeLogEntry struct {
	StrategyID  StrategyID `json:"strategy_id"`
	WindowStart time.Time  `json:"window_start"`
	Action      Action     `json:"action"`
	Quantity    float64    `json:"quantity"`
	Price       float64    `json:"price"`
	CashAfter   float64    `json:"cash_after"`
	UnitsAfter  float64    `json:"units_after"`
	CreatedAt   time.Time  `json:"created_at"`
}
