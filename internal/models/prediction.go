package models

import "time"

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// PredictionRecord — сигнал модели по запечатанной свече.
// На ключ (Symbol, WindowStart) живёт максимум одна запись;
// пересчитанная свеча может заместить её записью с большей ModelVersion.
type PredictionRecord struct {
	Symbol       string    `json:"symbol"`
	WindowStart  time.Time `json:"window_start"`
	Direction    Direction `json:"direction"`
	Confidence   float64   `json:"confidence"` // [0,1]
	ModelVersion int       `json:"model_version"`
	ProducedAt   time.Time `json:"produced_at"`
}
