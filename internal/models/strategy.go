package models

import (
	"fmt"
	"time"
)

type StrategyID string

const (
	StrategyDynamic         StrategyID = "dynamic"
	StrategyBalanced        StrategyID = "balanced"
	StrategyUltraAggressive StrategyID = "ultra_aggressive"
)

// AllStrategies перечисляет стратегии в фиксированном порядке исполнения.
var AllStrategies = []StrategyID{
	StrategyDynamic,
	StrategyBalanced,
	StrategyUltraAggressive,
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// StrategyState — персистентное состояние одной стратегии.
// Cash и Units никогда не уходят в минус; владеет состоянием только
// исполнитель этой стратегии.
type StrategyState struct {
	StrategyID StrategyID `json:"strategy_id"`
	Cash       float64    `json:"cash"`
	Units      float64    `json:"units"`
	LastWindow time.Time  `json:"last_window"`
}

// Position is IDLE when no units are held, LONG otherwise.
func (s StrategyState) Long() bool {
	return s.Units > 0
}

// Validate checks the ledger invariants after a mutation.
func (s StrategyState) Validate() error {
	if s.Cash < 0 {
		return fmt.Errorf("strategy %s: negative cash %f", s.StrategyID, s.Cash)
	}
	if s.Units < 0 {
		return fmt.Errorf("strategy %s: negative units %f", s.StrategyID, s.Units)
	}
	return nil
}
