package strategy

import (
	"trade_sim/internal/models"
)

// Decision — ответ стратегии на один тик: ровно одно действие.
type Decision struct {
	Action   models.Action
	Quantity float64
	Reason   string
}

func hold(reason string) Decision {
	return Decision{Action: models.ActionHold, Reason: reason}
}

// Decider — решающая функция одной стратегии. Состояния позиции всего два:
// IDLE (units == 0) и LONG (units > 0), шортов нет.
//
// Decide вызывается по одному разу на запечатанное окно, в порядке окон.
type Decider interface {
	Decide(st models.StrategyState, pred models.PredictionRecord, c models.Candle) Decision
	Dump() string
}
