package aggregator

import (
	"context"
	"testing"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(store *memStore, sealed chan models.Candle) *Manager {
	return NewManager(Options{
		WindowSize:     time.Minute,
		Grace:          2 * time.Minute,
		PersistRetries: 1,
		RetryBackoff:   time.Millisecond,
		BufferMax:      8,
	}, store, notify.Noop{}, sealed)
}

func seedTrades(ctx context.Context, t *testing.T, m *Manager, trades ...models.TradeEvent) {
	t.Helper()
	w, err := m.worker(ctx, "BTC-USDT")
	require.NoError(t, err)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tr := range trades {
		require.NoError(t, w.agg.Process(ctx, tr))
	}
}

func TestReconcileRewritesDivergedCandle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sealed := make(chan models.Candle, 64)
	m := newTestManager(store, sealed)

	seedTrades(ctx, t, m,
		trade("t1", 100, 1, window0.Add(10*time.Second)),
		trade("t2", 102, 1, window0.Add(70*time.Second)),
		trade("seal", 103, 1, window0.Add(130*time.Second)),
	)

	// сделка попала в store мимо живого пути (ручной импорт)
	_, err := store.InsertTrade(ctx, trade("imported", 120, 2, window0.Add(30*time.Second)))
	require.NoError(t, err)

	corrected, err := m.Reconcile(ctx, "BTC-USDT", window0, window0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	c, ok, err := store.Candle(ctx, "BTC-USDT", window0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120.0, c.High)
	assert.Equal(t, 3.0, c.Volume)
	assert.Equal(t, 2, c.TradeCount)
	assert.True(t, c.Sealed)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sealed := make(chan models.Candle, 64)
	m := newTestManager(store, sealed)

	seedTrades(ctx, t, m,
		trade("t1", 100, 1, window0.Add(10*time.Second)),
		trade("t2", 102, 1, window0.Add(70*time.Second)),
		trade("seal", 103, 1, window0.Add(130*time.Second)),
	)

	corrected, err := m.Reconcile(ctx, "BTC-USDT", window0, window0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, corrected, "consistent store needs no corrections")

	corrected, err = m.Reconcile(ctx, "BTC-USDT", window0, window0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
}

func TestReconcileFillsMissingGapCandle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sealed := make(chan models.Candle, 64)
	m := newTestManager(store, sealed)

	seedTrades(ctx, t, m,
		trade("t1", 100, 1, window0.Add(10*time.Second)),
		trade("t2", 110, 1, window0.Add(2*time.Minute+10*time.Second)),
		trade("seal", 111, 1, window0.Add(3*time.Minute+10*time.Second)),
	)

	// имитация дыры: gap-свеча пропала из store
	gapWindow := window0.Add(time.Minute)
	store.mu.Lock()
	delete(store.candles, candleKey("BTC-USDT", gapWindow))
	store.mu.Unlock()

	corrected, err := m.Reconcile(ctx, "BTC-USDT", window0, window0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	c, ok, err := store.Candle(ctx, "BTC-USDT", gapWindow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c.Gap())
	assert.Equal(t, 100.0, c.Close)
	assert.True(t, c.Sealed)
}

func TestReconcileNeverTouchesOpenWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sealed := make(chan models.Candle, 64)
	m := newTestManager(store, sealed)

	seedTrades(ctx, t, m,
		trade("t1", 100, 1, window0.Add(10*time.Second)),
		trade("t2", 102, 1, window0.Add(70*time.Second)),
	)

	// второе окно открыто: запрос дальше watermark обрезается по нему
	corrected, err := m.Reconcile(ctx, "BTC-USDT", window0, window0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)

	open, ok, err := store.Candle(ctx, "BTC-USDT", window0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, open.Sealed, "open window stays owned by the live path")
}

func TestManagerPersistBuffersOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sealed := make(chan models.Candle, 64)
	m := newTestManager(store, sealed)

	failing := &failingCandleStore{memStore: store, failUpserts: 4}
	m.store = failing
	w := &symbolWorker{m: m, symbol: "BTC-USDT"}

	c := models.Candle{Symbol: "BTC-USDT", WindowStart: window0, Open: 1, High: 1, Low: 1, Close: 1, Sealed: true}
	require.NoError(t, w.Persist(ctx, c))
	assert.Len(t, w.pending, 1, "failed write must land in the pending buffer")

	// store ожил: следующая запись сливает буфер
	failing.failUpserts = 0
	c2 := c
	c2.WindowStart = window0.Add(time.Minute)
	require.NoError(t, w.Persist(ctx, c2))
	assert.Empty(t, w.pending)

	_, ok, err := store.Candle(ctx, "BTC-USDT", window0)
	require.NoError(t, err)
	assert.True(t, ok, "buffered candle must be drained to the store")
}

// failingCandleStore отклоняет первые failUpserts записей свечей.
type failingCandleStore struct {
	*memStore
	failUpserts int
}

func (s *failingCandleStore) UpsertCandle(ctx context.Context, c models.Candle) error {
	if s.failUpserts > 0 {
		s.failUpserts--
		return assert.AnError
	}
	return s.memStore.UpsertCandle(ctx, c)
}
