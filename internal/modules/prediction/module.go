package prediction

import (
	"context"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/modules/health/service"
	predictionpg "trade_sim/internal/modules/prediction/pg"
	"trade_sim/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("prediction",
		fx.Provide(
			func(tx db.TxManager) *predictionpg.PredictionStore {
				return predictionpg.New(tx)
			},
			func(s *predictionpg.PredictionStore) Store { return s },
			func(cfg *config.Config) Scorer {
				return Heuristic{ModelVersion: cfg.Prediction.ModelVersion}
			},
			func(cfg *config.Config, store Store, scorer Scorer, state *service.State) *Consumer {
				return NewConsumer(store, scorer, state, cfg.Prediction.History)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			c *Consumer,
			store *predictionpg.PredictionStore,
			sealed chan models.Candle, // от агрегатора
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := store.EnsureSchema(startCtx); err != nil {
						return err
					}
					go c.Run(ctx, sealed)
					return nil
				},
			})
		}),
	)
}
