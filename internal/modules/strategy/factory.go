package strategy

import (
	"fmt"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/config"
)

// NewDecider собирает решающую функцию по идентификатору стратегии.
func NewDecider(id models.StrategyID, cfg *config.Config) (Decider, error) {
	switch id {
	case models.StrategyDynamic:
		return NewDynamic(), nil

	case models.StrategyBalanced:
		return NewBalanced(BalancedConfig{
			Windows:  cfg.Strategy.BalancedWindows,
			Fraction: cfg.Strategy.BalancedFraction,
		}), nil

	case models.StrategyUltraAggressive:
		return NewUltraAggressive(cfg.Strategy.UltraConfidence), nil

	default:
		return nil, fmt.Errorf("unknown strategy %q", id)
	}
}
