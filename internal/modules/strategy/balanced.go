package strategy

import (
	"fmt"

	"trade_sim/internal/models"
)

// BalancedConfig — параметры стратегии; пороги определяют поведение,
// поэтому задаются конфигом, а не зашиты в код.
type BalancedConfig struct {
	// Windows — сколько подряд окон направление должно держаться,
	// прежде чем стратегия начнёт действовать.
	Windows int
	// Fraction — доля доступного кэша/позиции на одно действие.
	Fraction float64
}

// Balanced торгует только подтверждённый тренд и только частью позиции,
// чтобы срезать churn на шумных сигналах.
type Balanced struct {
	cfg BalancedConfig

	lastDir models.Direction
	streak  int
}

func NewBalanced(cfg BalancedConfig) *Balanced {
	if cfg.Windows <= 0 {
		cfg.Windows = 3
	}
	if cfg.Fraction <= 0 || cfg.Fraction > 1 {
		cfg.Fraction = 0.5
	}
	return &Balanced{cfg: cfg}
}

func (s *Balanced) Decide(st models.StrategyState, pred models.PredictionRecord, c models.Candle) Decision {
	if pred.Direction == s.lastDir {
		s.streak++
	} else {
		s.lastDir = pred.Direction
		s.streak = 1
	}

	if c.Close <= 0 {
		return hold("no usable close price")
	}
	if s.streak < s.cfg.Windows {
		return hold(fmt.Sprintf("direction %s held %d/%d windows", pred.Direction, s.streak, s.cfg.Windows))
	}

	switch pred.Direction {
	case models.DirectionUp:
		qty := st.Cash * s.cfg.Fraction / c.Close
		if qty <= 0 {
			return hold("no cash to deploy")
		}
		return Decision{
			Action:   models.ActionBuy,
			Quantity: qty,
			Reason:   fmt.Sprintf("UP confirmed over %d windows: buy %.8f @ %.4f", s.streak, qty, c.Close),
		}

	case models.DirectionDown:
		qty := st.Units * s.cfg.Fraction
		if qty <= 0 {
			return hold("no units to sell")
		}
		return Decision{
			Action:   models.ActionSell,
			Quantity: qty,
			Reason:   fmt.Sprintf("DOWN confirmed over %d windows: sell %.8f @ %.4f", s.streak, qty, c.Close),
		}
	}

	return hold("unknown direction")
}

func (s *Balanced) Dump() string {
	return fmt.Sprintf("Balanced[need=%d frac=%.2f] dir=%s streak=%d", s.cfg.Windows, s.cfg.Fraction, s.lastDir, s.streak)
}
