package strategy

import (
	"fmt"

	"trade_sim/internal/models"
)

// UltraAggressive действует на каждый сигнал независимо от уверенности и
// переоценивает позицию каждое окно, а не только на переходах: при высокой
// уверенности докупает остатком кэша, поэтому может пройти
// LONG→IDLE→LONG за соседние окна.
type UltraAggressive struct {
	// ConfidenceThreshold гейтит повторные действия в ту же сторону.
	confidenceThreshold float64

	lastDir models.Direction
}

func NewUltraAggressive(confidenceThreshold float64) *UltraAggressive {
	if confidenceThreshold <= 0 || confidenceThreshold > 1 {
		confidenceThreshold = 0.8
	}
	return &UltraAggressive{confidenceThreshold: confidenceThreshold}
}

func (s *UltraAggressive) Decide(st models.StrategyState, pred models.PredictionRecord, c models.Candle) Decision {
	prevDir := s.lastDir
	s.lastDir = pred.Direction

	if c.Close <= 0 {
		return hold("no usable close price")
	}

	switch pred.Direction {
	case models.DirectionUp:
		if st.Cash <= 0 {
			return hold("fully deployed")
		}
		// Без перехода направление докупаем только при высокой уверенности.
		if st.Long() && prevDir == models.DirectionUp && pred.Confidence < s.confidenceThreshold {
			return hold(fmt.Sprintf("repeat UP below confidence gate %.2f", s.confidenceThreshold))
		}
		qty := st.Cash / c.Close
		return Decision{
			Action:   models.ActionBuy,
			Quantity: qty,
			Reason:   fmt.Sprintf("UP conf=%.2f: buy %.8f @ %.4f", pred.Confidence, qty, c.Close),
		}

	case models.DirectionDown:
		if !st.Long() {
			return hold("nothing to sell")
		}
		return Decision{
			Action:   models.ActionSell,
			Quantity: st.Units,
			Reason:   fmt.Sprintf("DOWN conf=%.2f: sell %.8f @ %.4f", pred.Confidence, st.Units, c.Close),
		}
	}

	return hold("unknown direction")
}

func (s *UltraAggressive) Dump() string {
	return fmt.Sprintf("UltraAggressive[gate=%.2f] dir=%s", s.confidenceThreshold, s.lastDir)
}
