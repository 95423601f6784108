package aggregator

import (
	"context"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/aggregator/pg"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/notify"
	"trade_sim/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("aggregator",
		fx.Provide(
			// общий канал запечатанных свечей для downstream-потребителей
			func() chan models.Candle {
				return make(chan models.Candle, 1024)
			},
			func(tx db.TxManager) *pg.CandleStore {
				return pg.New(tx)
			},
			func(s *pg.CandleStore) Store { return s },
			func(cfg *config.Config, store Store, n notify.Notifier, sealed chan models.Candle) *Manager {
				return NewManager(Options{
					WindowSize:     cfg.Aggregator.WindowSize,
					Grace:          cfg.Aggregator.Grace,
					PersistRetries: cfg.Aggregator.PersistRetries,
					RetryBackoff:   cfg.Aggregator.RetryBackoff,
					BufferMax:      cfg.Aggregator.BufferMax,
				}, store, n, sealed)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			m *Manager,
			store *pg.CandleStore,
			trades chan models.TradeEvent, // от feed-модуля
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := store.EnsureSchema(startCtx); err != nil {
						return err
					}
					go m.Run(ctx, trades)
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					return m.Shutdown(stopCtx)
				},
			})
		}),
	)
}
