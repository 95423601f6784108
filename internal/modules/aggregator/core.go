package aggregator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"trade_sim/internal/models"
	"trade_sim/pkg/logger"

	"github.com/pkg/errors"
)

// Counters — счётчики отбракованных/повторных событий, читает health.
type Counters struct {
	Malformed   atomic.Uint64
	Duplicates  atomic.Uint64
	Rejected    atomic.Uint64
	Corrections atomic.Uint64
}

// openWindow держит открытую свечу плюс метки, по которым open/close
// выбираются детерминированно при любом порядке прихода сделок.
type openWindow struct {
	candle models.Candle

	firstTS time.Time
	firstID string
	lastTS  time.Time
	lastID  string
}

// SymbolAggregator — владелец состояния агрегации одного символа.
// Не потокобезопасен: вызывающий обязан сериализовать Process/Flush/Resume.
type SymbolAggregator struct {
	symbol     string
	windowSize time.Duration
	grace      time.Duration

	store Store
	sink  Sink

	curr      *openWindow
	prevClose float64
	// watermark — начало последнего запечатанного окна; нулевое время,
	// пока не запечатано ни одной свечи.
	watermark time.Time

	counters *Counters
}

func NewSymbolAggregator(symbol string, windowSize, grace time.Duration, store Store, sink Sink, counters *Counters) *SymbolAggregator {
	return &SymbolAggregator{
		symbol:     symbol,
		windowSize: windowSize,
		grace:      grace,
		store:      store,
		sink:       sink,
		counters:   counters,
	}
}

// Watermark returns the start of the last sealed window.
func (a *SymbolAggregator) Watermark() time.Time {
	return a.watermark
}

func (a *SymbolAggregator) floorWindow(t time.Time) time.Time {
	return t.UTC().Truncate(a.windowSize)
}

// Resume восстанавливает состояние после рестарта: последняя свеча из
// store + пересборка открытого окна из сырых сделок.
func (a *SymbolAggregator) Resume(ctx context.Context) error {
	latest, ok, err := a.store.LatestCandle(ctx, a.symbol)
	if err != nil {
		return errors.Wrap(err, "load latest candle")
	}
	if !ok {
		return nil
	}

	if latest.Sealed {
		a.watermark = latest.WindowStart
		a.prevClose = latest.Close
		return nil
	}

	// Открытая свеча: open/close зависят от порядка сделок, поэтому окно
	// пересобирается из полного набора сделок, а не из самой свечи.
	trades, err := a.store.TradesInWindow(ctx, a.symbol, latest.WindowStart, latest.WindowStart.Add(a.windowSize))
	if err != nil {
		return errors.Wrap(err, "load open window trades")
	}
	w, err := a.rebuildWindow(latest.WindowStart, trades)
	if err != nil {
		return errors.Wrapf(err, "rebuild open window %s", latest.WindowStart)
	}
	w.candle.Sealed = false
	a.curr = w

	if prev, ok, err := a.store.Candle(ctx, a.symbol, latest.WindowStart.Add(-a.windowSize)); err != nil {
		return errors.Wrap(err, "load previous candle")
	} else if ok && prev.Sealed {
		a.watermark = prev.WindowStart
		a.prevClose = prev.Close
	}

	return nil
}

// Process folds one trade event into the aggregation state.
// Malformed, duplicate and too-late trades are absorbed, never fatal.
func (a *SymbolAggregator) Process(ctx context.Context, ev models.TradeEvent) error {
	if err := ev.Validate(); err != nil {
		a.counters.Malformed.Add(1)
		logger.Warn("drop malformed trade: %v", err)
		return nil
	}

	inserted, err := a.store.InsertTrade(ctx, ev)
	if err != nil {
		return errors.Wrapf(err, "insert trade %s", ev.TradeID)
	}
	if !inserted {
		// Повтор от at-least-once доставки либо backfill-реплей.
		a.counters.Duplicates.Add(1)
		return nil
	}

	window := a.floorWindow(ev.Timestamp)

	switch {
	case a.curr == nil:
		// Холодный старт после Resume с запечатанной свечи: окна не позже
		// watermark идут путём опоздавших, а не открывают новое текущее.
		if !a.watermark.IsZero() && !window.After(a.watermark) {
			return a.lateArrival(ctx, window)
		}
		if err := a.fillGaps(ctx, window); err != nil {
			return err
		}
		a.open(window, ev)
		return a.persistCurrent(ctx)

	case window.Equal(a.curr.candle.WindowStart):
		a.fold(ev)
		return a.persistCurrent(ctx)

	case window.After(a.curr.candle.WindowStart):
		if err := a.roll(ctx, window); err != nil {
			return err
		}
		a.open(window, ev)
		return a.persistCurrent(ctx)

	default:
		return a.lateArrival(ctx, window)
	}
}

// Flush persists the open candle so a restart resumes from this exact state.
func (a *SymbolAggregator) Flush(ctx context.Context) error {
	if a.curr == nil {
		return nil
	}
	return a.persistCurrent(ctx)
}

func (a *SymbolAggregator) open(window time.Time, ev models.TradeEvent) {
	a.curr = &openWindow{
		candle: models.Candle{
			Symbol:      a.symbol,
			WindowStart: window,
			Open:        ev.Price,
			High:        ev.Price,
			Low:         ev.Price,
			Close:       ev.Price,
			Volume:      ev.Volume,
			TradeCount:  1,
		},
		firstTS: ev.Timestamp,
		firstID: ev.TradeID,
		lastTS:  ev.Timestamp,
		lastID:  ev.TradeID,
	}
}

func (a *SymbolAggregator) fold(ev models.TradeEvent) {
	c := &a.curr.candle
	if ev.Price > c.High {
		c.High = ev.Price
	}
	if ev.Price < c.Low {
		c.Low = ev.Price
	}
	c.Volume += ev.Volume
	c.TradeCount++

	// Самая ранняя сделка определяет open, самая поздняя — close.
	// При равных метках времени решает trade_id, чтобы результат
	// не зависел от порядка прихода.
	if earlier(ev.Timestamp, ev.TradeID, a.curr.firstTS, a.curr.firstID) {
		c.Open = ev.Price
		a.curr.firstTS, a.curr.firstID = ev.Timestamp, ev.TradeID
	}
	if earlier(a.curr.lastTS, a.curr.lastID, ev.Timestamp, ev.TradeID) {
		c.Close = ev.Price
		a.curr.lastTS, a.curr.lastID = ev.Timestamp, ev.TradeID
	}
}

func earlier(ts1 time.Time, id1 string, ts2 time.Time, id2 string) bool {
	if !ts1.Equal(ts2) {
		return ts1.Before(ts2)
	}
	return id1 < id2
}

// roll запечатывает текущее окно и закрывает пустые окна gap-свечами
// вплоть до target (не включая его).
func (a *SymbolAggregator) roll(ctx context.Context, target time.Time) error {
	a.curr.candle.Sealed = true
	if err := a.sink.Persist(ctx, a.curr.candle); err != nil {
		return errors.Wrap(err, "persist sealed candle")
	}
	a.sink.Emit(a.curr.candle)
	a.watermark = a.curr.candle.WindowStart
	a.prevClose = a.curr.candle.Close
	a.curr = nil

	return a.fillGaps(ctx, target)
}

// fillGaps закрывает gap-свечами все пустые окна от watermark до target
// (не включая его), сохраняя последовательность непрерывной.
func (a *SymbolAggregator) fillGaps(ctx context.Context, target time.Time) error {
	if a.watermark.IsZero() {
		return nil
	}
	for gw := a.watermark.Add(a.windowSize); gw.Before(target); gw = gw.Add(a.windowSize) {
		gap := gapCandle(a.symbol, gw, a.prevClose)
		if err := a.sink.Persist(ctx, gap); err != nil {
			return errors.Wrapf(err, "persist gap candle %s", gw)
		}
		a.sink.Emit(gap)
		a.watermark = gw
	}

	return nil
}

// gapCandle — синтетическая свеча без сделок: плоская по close
// предыдущей запечатанной свечи, держит последовательность непрерывной.
func gapCandle(symbol string, window time.Time, prevClose float64) models.Candle {
	return models.Candle{
		Symbol:      symbol,
		WindowStart: window,
		Open:        prevClose,
		High:        prevClose,
		Low:         prevClose,
		Close:       prevClose,
		Sealed:      true,
	}
}

// lateArrival пересчитывает уже запечатанное окно по полному набору
// известных сделок. Сделки старше grace-периода отбрасываются.
func (a *SymbolAggregator) lateArrival(ctx context.Context, window time.Time) error {
	if a.watermark.IsZero() || a.watermark.Sub(window) > a.grace {
		a.counters.Rejected.Add(1)
		logger.Warn("reject late trade for %s window %s: outside grace period", a.symbol, window)
		return nil
	}

	trades, err := a.store.TradesInWindow(ctx, a.symbol, window, window.Add(a.windowSize))
	if err != nil {
		return errors.Wrapf(err, "load trades for late window %s", window)
	}
	w, err := a.rebuildWindow(window, trades)
	if err != nil {
		// Консистентность окна нарушена: старая свеча остаётся как была.
		logger.Error("late recompute aborted for %s window %s: %v", a.symbol, window, err)
		return nil
	}

	corrected := w.candle
	corrected.Sealed = true
	if err := a.sink.Persist(ctx, corrected); err != nil {
		return errors.Wrapf(err, "persist corrected candle %s", window)
	}
	a.sink.Emit(corrected)
	a.counters.Corrections.Add(1)

	if window.Equal(a.watermark) {
		a.prevClose = corrected.Close
	}

	return nil
}

// rebuildWindow восстанавливает окно детерминированно из набора сделок.
func (a *SymbolAggregator) rebuildWindow(window time.Time, trades []models.TradeEvent) (*openWindow, error) {
	if len(trades) == 0 {
		return nil, errors.New("empty trade set")
	}

	sort.Slice(trades, func(i, j int) bool {
		return earlier(trades[i].Timestamp, trades[i].TradeID, trades[j].Timestamp, trades[j].TradeID)
	})

	w := &openWindow{
		candle: models.Candle{
			Symbol:      a.symbol,
			WindowStart: window,
			Open:        trades[0].Price,
			High:        trades[0].Price,
			Low:         trades[0].Price,
			Close:       trades[0].Price,
			Volume:      trades[0].Volume,
			TradeCount:  1,
		},
		firstTS: trades[0].Timestamp,
		firstID: trades[0].TradeID,
		lastTS:  trades[0].Timestamp,
		lastID:  trades[0].TradeID,
	}
	for _, t := range trades[1:] {
		c := &w.candle
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume += t.Volume
		c.TradeCount++
		w.lastTS, w.lastID = t.Timestamp, t.TradeID
	}

	return w, nil
}

func (a *SymbolAggregator) persistCurrent(ctx context.Context) error {
	if a.curr == nil {
		return nil
	}
	return a.sink.Persist(ctx, a.curr.candle)
}
