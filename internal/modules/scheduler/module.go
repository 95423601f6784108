package scheduler

import (
	"context"

	"trade_sim/internal/modules/aggregator"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/modules/strategy"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(
			func(cfg *config.Config, e *strategy.Executor, m *aggregator.Manager) *Scheduler {
				return New(e, m, cfg.Scheduler.RecoveryLookback)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *Scheduler, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					if err := s.Register(cfg.Scheduler.TickSpec, cfg.Scheduler.RecoverySpec); err != nil {
						return err
					}
					s.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}
