package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/ledger"
	"trade_sim/internal/notify"
	"trade_sim/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// качественная граница для float-сравнений денег/объёмов
const sizingEps = 1e-9

// batchLimit ограничивает, сколько окон тик догоняет за один вызов.
const batchLimit = 256

// CandleSource отдаёт запечатанные свечи в порядке окон.
type CandleSource interface {
	SealedCandlesAfter(ctx context.Context, symbol string, after time.Time, limit int) ([]models.Candle, error)
}

// PredictionSource — read-only доступ к сигналам модели.
// Отсутствие записи — валидное состояние, а не ошибка.
type PredictionSource interface {
	Get(ctx context.Context, symbol string, window time.Time) (models.PredictionRecord, bool, error)
}

// errAwaitPrediction — сентинел: свежайшее окно ещё без прогноза,
// тик останавливается и повторит попытку по следующему триггеру.
var errAwaitPrediction = errors.New("prediction not yet available")

// Executor прогоняет тики трёх стратегий. Стратегии не делят между собой
// ничего изменяемого; каждая догоняет собственный курсор LastWindow.
type Executor struct {
	symbol       string
	startingCash float64

	ledger      ledger.Store
	predictions PredictionSource
	candles     CandleSource
	notifier    notify.Notifier

	deciders map[models.StrategyID]Decider

	// mu гасит перекрывающиеся триггеры внутри процесса; между процессами
	// страхует уникальный индекс журнала (ErrDuplicateEntry).
	mu sync.Mutex
}

func NewExecutor(
	symbol string,
	startingCash float64,
	ledgerStore ledger.Store,
	predictions PredictionSource,
	candles CandleSource,
	notifier notify.Notifier,
	deciders map[models.StrategyID]Decider,
) *Executor {
	return &Executor{
		symbol:       symbol,
		startingCash: startingCash,
		ledger:       ledgerStore,
		predictions:  predictions,
		candles:      candles,
		notifier:     notifier,
		deciders:     deciders,
	}
}

// Tick — один вызов внешнего планировщика. Идемпотентен: повторный запуск
// по тем же окнам не производит вторых записей журнала.
func (e *Executor) Tick(ctx context.Context) error {
	span := opentracing.StartSpan("strategy.tick")
	defer span.Finish()

	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, id := range models.AllStrategies {
		if err := e.tickStrategy(ctx, id); err != nil {
			logger.Error("tick %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Executor) tickStrategy(ctx context.Context, id models.StrategyID) error {
	decider, ok := e.deciders[id]
	if !ok {
		return errors.Errorf("no decider for strategy %s", id)
	}

	st, found, err := e.ledger.State(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		st = models.StrategyState{
			StrategyID: id,
			Cash:       e.startingCash,
		}
	}

	candles, err := e.candles.SealedCandlesAfter(ctx, e.symbol, st.LastWindow, batchLimit)
	if err != nil {
		return err
	}

	for i, c := range candles {
		// Свежайшее окно без прогноза ждём; по старым окнам прогноза
		// уже не будет — это штатный HOLD.
		newest := i == len(candles)-1 && len(candles) < batchLimit
		if err := e.tickWindow(ctx, id, decider, c, newest); err != nil {
			if errors.Is(err, errAwaitPrediction) {
				return nil
			}
			return errors.Wrapf(err, "window %s", c.WindowStart)
		}
	}
	return nil
}

// tickWindow — атомарный read-decide-write одного окна одной стратегии.
func (e *Executor) tickWindow(ctx context.Context, id models.StrategyID, decider Decider, c models.Candle, newest bool) error {
	return e.ledger.WithinTx(ctx, func(ctx context.Context, s ledger.Store) error {
		st, found, err := s.State(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			st = models.StrategyState{
				StrategyID: id,
				Cash:       e.startingCash,
			}
		}
		if !c.WindowStart.After(st.LastWindow) {
			return nil
		}

		// at-most-once: окно с записью в журнале уже обработано
		if _, exists, err := s.Entry(ctx, id, c.WindowStart); err != nil {
			return err
		} else if exists {
			st.LastWindow = c.WindowStart
			return s.SaveState(ctx, st)
		}

		pred, havePred, err := e.predictions.Get(ctx, c.Symbol, c.WindowStart)
		if err != nil {
			return err
		}
		if !havePred {
			if newest {
				return errAwaitPrediction
			}
			// Прогноз не появился и уже не появится: HOLD без записи.
			st.LastWindow = c.WindowStart
			return s.SaveState(ctx, st)
		}

		d := decider.Decide(st, pred, c)
		d = e.validate(id, st, d, c)

		switch d.Action {
		case models.ActionBuy:
			st.Cash -= d.Quantity * c.Close
			st.Units += d.Quantity
		case models.ActionSell:
			st.Cash += d.Quantity * c.Close
			st.Units -= d.Quantity
		}
		// float-хвосты от полной продажи/покупки прижимаем к нулю
		if st.Cash < 0 {
			st.Cash = 0
		}
		if st.Units < 0 {
			st.Units = 0
		}

		if err := st.Validate(); err != nil {
			return err
		}
		st.LastWindow = c.WindowStart

		entry := models.TradeLogEntry{
			StrategyID:  id,
			WindowStart: c.WindowStart,
			Action:      d.Action,
			Quantity:    d.Quantity,
			Price:       c.Close,
			CashAfter:   st.Cash,
			UnitsAfter:  st.Units,
			CreatedAt:   time.Now().UTC(),
		}

		if err := s.SaveState(ctx, st); err != nil {
			return err
		}
		if err := s.AppendEntry(ctx, entry); err != nil {
			if errors.Is(err, ledger.ErrDuplicateEntry) {
				// Параллельный триггер успел первым; транзакция откатится
				// целиком, его результат останется единственным.
				logger.Warn("duplicate tick for %s window %s, yielding", id, c.WindowStart)
			}
			return err
		}

		if d.Action != models.ActionHold {
			logger.Info("[%s] %s %.8f @ %.4f (%s) cash=%.4f units=%.8f", id, d.Action, d.Quantity, c.Close, d.Reason, st.Cash, st.Units)
		}
		return nil
	})
}

// validate деградирует невалидные решения в HOLD: сделка либо применяется
// целиком, либо не применяется вовсе.
func (e *Executor) validate(id models.StrategyID, st models.StrategyState, d Decision, c models.Candle) Decision {
	switch d.Action {
	case models.ActionHold:
		return Decision{Action: models.ActionHold, Reason: d.Reason}

	case models.ActionBuy:
		if d.Quantity <= 0 {
			return hold("buy with non-positive quantity")
		}
		cost := d.Quantity * c.Close
		if cost > st.Cash+sizingEps {
			e.policyFault(id, c, "BUY cost %.8f exceeds cash %.8f", cost, st.Cash)
			return hold("policy fault: oversized buy")
		}
		return d

	case models.ActionSell:
		if d.Quantity <= 0 {
			return hold("sell with non-positive quantity")
		}
		if d.Quantity > st.Units+sizingEps {
			e.policyFault(id, c, "SELL quantity %.8f exceeds units %.8f", d.Quantity, st.Units)
			return hold("policy fault: oversized sell")
		}
		if d.Quantity > st.Units {
			d.Quantity = st.Units
		}
		return d

	default:
		e.policyFault(id, c, "unknown action %q", d.Action)
		return hold("policy fault: unknown action")
	}
}

func (e *Executor) policyFault(id models.StrategyID, c models.Candle, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("strategy policy fault [%s] window %s: %s", id, c.WindowStart, msg)
	e.notifier.Sendf("policy fault [%s] window %s: %s", id, c.WindowStart, msg)
}
