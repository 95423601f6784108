package strategy

import (
	"fmt"

	"trade_sim/internal/models"
)

// Dynamic реагирует на каждый переход сигнала: UP в IDLE — покупка на весь
// кэш, DOWN в LONG — продажа всей позиции, иначе HOLD.
type Dynamic struct {
	lastAction models.Action
}

func NewDynamic() *Dynamic {
	return &Dynamic{lastAction: models.ActionHold}
}

func (s *Dynamic) Decide(st models.StrategyState, pred models.PredictionRecord, c models.Candle) Decision {
	if c.Close <= 0 {
		return hold("no usable close price")
	}

	switch {
	case pred.Direction == models.DirectionUp && !st.Long():
		qty := st.Cash / c.Close
		if qty <= 0 {
			return hold("no cash to deploy")
		}
		s.lastAction = models.ActionBuy
		return Decision{
			Action:   models.ActionBuy,
			Quantity: qty,
			Reason:   fmt.Sprintf("UP while IDLE: buy %.8f @ %.4f", qty, c.Close),
		}

	case pred.Direction == models.DirectionDown && st.Long():
		s.lastAction = models.ActionSell
		return Decision{
			Action:   models.ActionSell,
			Quantity: st.Units,
			Reason:   fmt.Sprintf("DOWN while LONG: sell %.8f @ %.4f", st.Units, c.Close),
		}

	default:
		return hold("no signal transition")
	}
}

func (s *Dynamic) Dump() string {
	return fmt.Sprintf("Dynamic last=%s", s.lastAction)
}
