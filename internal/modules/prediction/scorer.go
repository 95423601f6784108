package prediction

import (
	"context"
	"math"

	"trade_sim/internal/models"
)

// Features — вектор признаков одной запечатанной свечи.
// Состав фиксирован контрактом с моделью; обучение модели вне этого ядра.
type Features struct {
	Return      float64 // (close-prevClose)/prevClose
	Range       float64 // (high-low)/close
	VolumeRatio float64 // volume / trailing mean volume
	Momentum    float64 // среднее последних returns
}

// Scorer — непрозрачная скоринговая функция модели.
type Scorer interface {
	Score(ctx context.Context, f Features) (models.Direction, float64, error)
	Version() int
}

// Heuristic — детерминированный скорер-заглушка, чтобы пайплайн работал
// end-to-end без внешней модели. Направление по знаку return+momentum,
// уверенность растёт с величиной движения относительно диапазона свечи.
type Heuristic struct {
	ModelVersion int
}

func (h Heuristic) Version() int { return h.ModelVersion }

func (h Heuristic) Score(_ context.Context, f Features) (models.Direction, float64, error) {
	signal := f.Return + 0.5*f.Momentum

	direction := models.DirectionUp
	if signal < 0 {
		direction = models.DirectionDown
	}

	denom := f.Range
	if denom < 1e-9 {
		denom = 1e-9
	}
	confidence := math.Abs(signal) / denom
	if f.VolumeRatio > 1 {
		confidence *= math.Min(f.VolumeRatio, 2)
	}
	confidence = math.Min(confidence, 0.95)
	confidence = math.Max(confidence, 0.05)

	return direction, confidence, nil
}
