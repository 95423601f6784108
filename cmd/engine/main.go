package main

import (
	"context"
	"log"

	"trade_sim/internal/modules/aggregator"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/modules/feed"
	"trade_sim/internal/modules/health"
	"trade_sim/internal/modules/postgres"
	"trade_sim/internal/modules/prediction"
	"trade_sim/internal/modules/scheduler"
	"trade_sim/internal/modules/strategy"
	"trade_sim/internal/notify"
	"trade_sim/pkg/logger"
	"trade_sim/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(func(cfg *config.Config, lc fx.Lifecycle) error {
			logger.SetServiceName(cfg.Service.Name)
			tracing.SetServiceName(cfg.Service.Name)
			_, closer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closer()
					return nil
				},
			})
			return nil
		}),
		postgres.Module(),
		notify.Module(),
		health.Module(),
		feed.Module(),
		aggregator.Module(),
		prediction.Module(),
		strategy.Module(),
		scheduler.Module(),
	)
	app.Run()
}
