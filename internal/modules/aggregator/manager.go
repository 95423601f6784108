package aggregator

import (
	"context"
	"sync"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/notify"
	"trade_sim/pkg/logger"

	"github.com/pkg/errors"
)

// Options задаются из конфига, не из кода.
type Options struct {
	WindowSize     time.Duration
	Grace          time.Duration
	PersistRetries int
	RetryBackoff   time.Duration
	BufferMax      int
}

// Manager раздаёт каждому символу собственного воркера-владельца.
// Никакие два пути исполнения не мутируют свечи одного символа одновременно.
type Manager struct {
	opts     Options
	store    Store
	notifier notify.Notifier
	sealed   chan<- models.Candle

	mu      sync.Mutex
	workers map[string]*symbolWorker
	wg      sync.WaitGroup

	Counters Counters
}

func NewManager(opts Options, store Store, notifier notify.Notifier, sealed chan<- models.Candle) *Manager {
	return &Manager{
		opts:     opts,
		store:    store,
		notifier: notifier,
		sealed:   sealed,
		workers:  make(map[string]*symbolWorker),
	}
}

// symbolWorker — единственный владелец состояния агрегации своего символа.
// mu сериализует живой поток и backfill: им запрещено бежать параллельно.
type symbolWorker struct {
	m      *Manager
	symbol string

	mu     sync.Mutex
	agg    *SymbolAggregator
	events chan models.TradeEvent

	// pending — ограниченный буфер свечей, не записанных в store.
	pending []models.Candle
}

// Run раскладывает события из фида по воркерам символов.
// Блокируется до закрытия канала либо отмены контекста.
func (m *Manager) Run(ctx context.Context, events <-chan models.TradeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w, err := m.worker(ctx, ev.Symbol)
			if err != nil {
				logger.Error("worker init for %s failed: %v", ev.Symbol, err)
				continue
			}
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Manager) worker(ctx context.Context, symbol string) (*symbolWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[symbol]; ok {
		return w, nil
	}

	w := &symbolWorker{
		m:      m,
		symbol: symbol,
		events: make(chan models.TradeEvent, 1024),
	}
	w.agg = NewSymbolAggregator(symbol, m.opts.WindowSize, m.opts.Grace, m.store, w, &m.Counters)
	if err := w.agg.Resume(ctx); err != nil {
		return nil, errors.Wrapf(err, "resume %s", symbol)
	}
	m.workers[symbol] = w

	m.wg.Add(1)
	go w.loop(ctx)

	return w, nil
}

func (w *symbolWorker) loop(ctx context.Context) {
	defer w.m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.handle(ctx, ev)
		}
	}
}

func (w *symbolWorker) handle(ctx context.Context, ev models.TradeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.agg.Process(ctx, ev); err != nil {
		logger.Error("process trade %s: %v", ev.TradeID, err)
		return
	}
	if ev.Offset > 0 {
		if err := w.m.store.CommitOffset(ctx, w.symbol, ev.Offset); err != nil {
			logger.Error("commit offset %d for %s: %v", ev.Offset, w.symbol, err)
		}
	}
}

// Persist пишет свечу с ограниченными ретраями; при недоступности store
// свеча попадает в ограниченный буфер, переполнение которого — фатальный
// алерт: риск потери данных не глотается молча.
func (w *symbolWorker) Persist(ctx context.Context, c models.Candle) error {
	var err error
	for attempt := 0; attempt <= w.m.opts.PersistRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.m.opts.RetryBackoff * time.Duration(attempt))
		}
		if err = w.m.store.UpsertCandle(ctx, c); err == nil {
			w.drainPending(ctx)
			return nil
		}
	}

	if len(w.pending) >= w.m.opts.BufferMax {
		w.m.notifier.Sendf("FATAL: candle write buffer overflow for %s, window %s lost", w.symbol, c.WindowStart)
		logger.Error("candle buffer overflow for %s: dropping window %s", w.symbol, c.WindowStart)
		return errors.Wrap(err, "candle buffer overflow")
	}
	w.pending = append(w.pending, c)
	logger.Warn("buffered candle %s/%s after failed persist: %v", w.symbol, c.WindowStart, err)
	return nil
}

func (w *symbolWorker) drainPending(ctx context.Context) {
	for len(w.pending) > 0 {
		c := w.pending[0]
		if err := w.m.store.UpsertCandle(ctx, c); err != nil {
			return
		}
		w.pending = w.pending[1:]
	}
}

func (w *symbolWorker) Emit(c models.Candle) {
	select {
	case w.m.sealed <- c:
	default:
		logger.Warn("sealed candle channel full, dropping emission %s/%s", c.Symbol, c.WindowStart)
	}
}

// Shutdown сбрасывает открытые свечи в store, чтобы рестарт продолжил
// ровно с этого состояния, а не переработал всё заново.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for symbol, w := range m.workers {
		w.mu.Lock()
		if err := w.agg.Flush(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "flush %s", symbol)
		}
		w.drainPending(ctx)
		if len(w.pending) > 0 {
			m.notifier.Sendf("FATAL: %d candles for %s unflushed at shutdown", len(w.pending), symbol)
		}
		w.mu.Unlock()
	}
	return firstErr
}

// Watermarks returns the last sealed window per symbol, for health reporting.
func (m *Manager) Watermarks() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time, len(m.workers))
	for symbol, w := range m.workers {
		w.mu.Lock()
		out[symbol] = w.agg.Watermark()
		w.mu.Unlock()
	}
	return out
}
