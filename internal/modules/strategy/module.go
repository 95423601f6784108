package strategy

import (
	"context"

	"trade_sim/internal/models"
	aggregatorpg "trade_sim/internal/modules/aggregator/pg"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/modules/ledger"
	ledgerpg "trade_sim/internal/modules/ledger/pg"
	predictionpg "trade_sim/internal/modules/prediction/pg"
	"trade_sim/internal/notify"
	"trade_sim/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(tx db.TxManager) *ledgerpg.LedgerStore {
				return ledgerpg.New(tx)
			},
			func(s *ledgerpg.LedgerStore) ledger.Store { return s },
			func(cfg *config.Config) (map[models.StrategyID]Decider, error) {
				deciders := make(map[models.StrategyID]Decider, len(models.AllStrategies))
				for _, id := range models.AllStrategies {
					d, err := NewDecider(id, cfg)
					if err != nil {
						return nil, err
					}
					deciders[id] = d
				}
				return deciders, nil
			},
			func(
				cfg *config.Config,
				ledgerStore ledger.Store,
				predictions *predictionpg.PredictionStore,
				candles *aggregatorpg.CandleStore,
				notifier notify.Notifier,
				deciders map[models.StrategyID]Decider,
			) *Executor {
				return NewExecutor(
					cfg.Strategy.Symbol,
					cfg.Strategy.StartingCash,
					ledgerStore,
					predictions,
					candles,
					notifier,
					deciders,
				)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, store *ledgerpg.LedgerStore) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return store.EnsureSchema(ctx)
				},
			})
		}),
	)
}
