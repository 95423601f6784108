package scheduler

import (
	"context"
	"time"

	"trade_sim/internal/modules/aggregator"
	"trade_sim/internal/modules/strategy"
	"trade_sim/pkg/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Scheduler дергает тики стратегий и фоновую сверку свечей по cron-спекам.
// Оба задания безопасно перекрывать по времени: тик идемпотентен, сверка
// сериализуется воркерными мьютексами агрегатора.
type Scheduler struct {
	cron     *cron.Cron
	executor *strategy.Executor
	manager  *aggregator.Manager

	lookback time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(executor *strategy.Executor, manager *aggregator.Manager, lookback time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		executor: executor,
		manager:  manager,
		lookback: lookback,
	}
}

func (s *Scheduler) Register(tickSpec, recoverySpec string) error {
	if _, err := s.cron.AddFunc(tickSpec, s.runTick); err != nil {
		return errors.Wrapf(err, "scheduler: bad tick spec %q", tickSpec)
	}
	if recoverySpec != "" {
		if _, err := s.cron.AddFunc(recoverySpec, s.runRecovery); err != nil {
			return errors.Wrapf(err, "scheduler: bad recovery spec %q", recoverySpec)
		}
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop останавливает расписание и ждёт завершения запущенных заданий.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	logger.Info("scheduler stopped")
}

func (s *Scheduler) runTick() {
	if err := s.executor.Tick(s.ctx); err != nil {
		logger.Error("scheduled tick: %v", err)
	}
}

func (s *Scheduler) runRecovery() {
	if err := s.manager.ReconcileAll(s.ctx, s.lookback); err != nil {
		logger.Error("scheduled reconcile: %v", err)
	}
}
