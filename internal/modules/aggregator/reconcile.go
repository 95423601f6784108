package aggregator

import (
	"context"
	"time"

	"trade_sim/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// Reconcile пересобирает окна символа в диапазоне [from, to] из полного
// набора сделок в store и переписывает разошедшиеся свечи. Работает только
// по окнам не позже watermark и никогда параллельно с живым агрегатором
// этого символа: держит тот же worker mutex.
//
// Ошибка пересборки одного окна прерывает только это окно; ранее
// запечатанная свеча остаётся нетронутой.
func (m *Manager) Reconcile(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	span := opentracing.StartSpan("aggregator.reconcile")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	w, err := m.worker(ctx, symbol)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	watermark := w.agg.Watermark()
	if watermark.IsZero() {
		return 0, nil
	}

	from = from.UTC().Truncate(m.opts.WindowSize)
	to = to.UTC().Truncate(m.opts.WindowSize)
	if to.After(watermark) {
		// Backfill переписывает только окна не позже watermark;
		// открытым окном владеет живой путь.
		to = watermark
	}

	// Цепочка close-цен нужна для синтеза gap-свечей по пустым окнам.
	var prevClose float64
	var prevKnown bool
	if prev, ok, err := m.store.Candle(ctx, symbol, from.Add(-m.opts.WindowSize)); err != nil {
		return 0, errors.Wrap(err, "load candle before range")
	} else if ok && prev.Sealed {
		prevClose, prevKnown = prev.Close, true
	}

	corrected := 0
	for window := from; !window.After(to); window = window.Add(m.opts.WindowSize) {
		changed, close, known, err := m.reconcileWindow(ctx, w, window, prevClose, prevKnown)
		if err != nil {
			logger.Error("reconcile %s window %s aborted: %v", symbol, window, err)
			// Окно с ошибкой пропускаем, цепочку продолжаем со store-значения.
			if stored, ok, serr := m.store.Candle(ctx, symbol, window); serr == nil && ok {
				prevClose, prevKnown = stored.Close, true
			}
			continue
		}
		prevClose, prevKnown = close, known
		if changed {
			corrected++
		}
	}

	if corrected > 0 {
		m.Counters.Corrections.Add(uint64(corrected))
		logger.Info("reconcile %s: %d windows corrected in [%s, %s]", symbol, corrected, from, to)
	}
	return corrected, nil
}

func (m *Manager) reconcileWindow(ctx context.Context, w *symbolWorker, window time.Time, prevClose float64, prevKnown bool) (changed bool, close float64, known bool, err error) {
	trades, err := m.store.TradesInWindow(ctx, w.symbol, window, window.Add(m.opts.WindowSize))
	if err != nil {
		return false, 0, false, errors.Wrap(err, "load trades")
	}

	expected, ok := gapCandle(w.symbol, window, prevClose), prevKnown
	if len(trades) > 0 {
		rebuilt, err := w.agg.rebuildWindow(window, trades)
		if err != nil {
			return false, 0, false, errors.Wrap(err, "rebuild window")
		}
		rebuilt.candle.Sealed = true
		expected, ok = rebuilt.candle, true
	}
	if !ok {
		// Пустое окно без известного prev close: синтезировать нечего.
		return false, 0, false, nil
	}

	stored, found, err := m.store.Candle(ctx, w.symbol, window)
	if err != nil {
		return false, 0, false, errors.Wrap(err, "load stored candle")
	}
	if found && stored.Equal(expected) {
		return false, expected.Close, true, nil
	}

	if err := w.Persist(ctx, expected); err != nil {
		return false, 0, false, errors.Wrap(err, "persist corrected candle")
	}
	w.Emit(expected)
	return true, expected.Close, true, nil
}

// ReconcileAll прогоняет gap-recovery по всем известным символам за
// lookback от текущего момента. Триггер идемпотентен: повторный запуск
// по уже согласованным окнам ничего не меняет.
func (m *Manager) ReconcileAll(ctx context.Context, lookback time.Duration) error {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.workers))
	for symbol := range m.workers {
		symbols = append(symbols, symbol)
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	var firstErr error
	for _, symbol := range symbols {
		if _, err := m.Reconcile(ctx, symbol, now.Add(-lookback), now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
