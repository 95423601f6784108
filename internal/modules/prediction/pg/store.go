package pg

import (
	"context"
	"fmt"
	"time"

	"trade_sim/internal/models"
	"trade_sim/pkg/db"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	symbol        TEXT NOT NULL,
	window_start  TIMESTAMPTZ NOT NULL,
	direction     TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	model_version INTEGER NOT NULL,
	produced_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (symbol, window_start)
);
`

// PredictionStore implement db store
type PredictionStore struct {
	conn db.Transaction
}

// New instance
func New(tx db.TxManager) *PredictionStore {
	return &PredictionStore{conn: tx.Conn()}
}

func (s *PredictionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("PredictionStore.EnsureSchema: %w", err)
	}
	return nil
}

// Upsert замещает запись только прогнозом с не меньшей model_version:
// пересчитанная свеча может заместить сигнал, более старая версия — нет.
func (s *PredictionStore) Upsert(ctx context.Context, rec models.PredictionRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PredictionStore.Upsert: %w", err)
		}
	}()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO predictions (symbol, window_start, direction, confidence, model_version, produced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, window_start) DO UPDATE SET
			direction = EXCLUDED.direction,
			confidence = EXCLUDED.confidence,
			model_version = EXCLUDED.model_version,
			produced_at = EXCLUDED.produced_at
		WHERE predictions.model_version <= EXCLUDED.model_version`,
		rec.Symbol, rec.WindowStart, string(rec.Direction), rec.Confidence, rec.ModelVersion, rec.ProducedAt,
	)
	return err
}

func (s *PredictionStore) Get(ctx context.Context, symbol string, window time.Time) (rec models.PredictionRecord, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PredictionStore.Get: %w", err)
		}
	}()

	row := s.conn.QueryRow(ctx, `
		SELECT symbol, window_start, direction, confidence, model_version, produced_at
		FROM predictions
		WHERE symbol = $1 AND window_start = $2`,
		symbol, window,
	)
	var direction string
	err = row.Scan(&rec.Symbol, &rec.WindowStart, &direction, &rec.Confidence, &rec.ModelVersion, &rec.ProducedAt)
	if err == pgx.ErrNoRows {
		return models.PredictionRecord{}, false, nil
	}
	if err != nil {
		return models.PredictionRecord{}, false, err
	}
	rec.Direction = models.Direction(direction)
	return rec, true, nil
}
