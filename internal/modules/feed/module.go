package feed

import (
	"context"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/aggregator/pg"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/modules/health/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			// общий канал сделок между фидом и агрегатором
			func() chan models.TradeEvent {
				return make(chan models.TradeEvent, 4096)
			},
			func(cfg *config.Config, store *pg.CandleStore, state *service.State) *Consumer {
				return NewConsumer(Options{
					URL:          cfg.Feed.URL,
					Topic:        cfg.Feed.Topic,
					Symbols:      cfg.Feed.Symbols,
					PingInterval: cfg.Feed.PingInterval,
					ReconnectMin: cfg.Feed.ReconnectMin,
					ReconnectMax: cfg.Feed.ReconnectMax,
				}, store, state)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			c *Consumer,
			trades chan models.TradeEvent,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.Stream(ctx, trades)
					return nil
				},
			})
		}),
	)
}
