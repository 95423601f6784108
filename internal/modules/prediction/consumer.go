package prediction

import (
	"context"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/health/service"
	"trade_sim/pkg/logger"
)

// Store — append-only прогнозы; максимум одна живая запись на ключ
// (symbol, window_start), замещение по model_version.
type Store interface {
	Upsert(ctx context.Context, rec models.PredictionRecord) error
	Get(ctx context.Context, symbol string, window time.Time) (models.PredictionRecord, bool, error)
}

// Consumer превращает запечатанные свечи в PredictionRecord.
// Один goroutine-владелец, история по символам только в его руках.
type Consumer struct {
	store   Store
	scorer  Scorer
	state   *service.State
	history int

	hist map[string]*symbolHistory
}

type symbolHistory struct {
	lastWindow time.Time
	closes     []float64
	volumes    []float64
	returns    []float64
}

func NewConsumer(store Store, scorer Scorer, state *service.State, history int) *Consumer {
	if history <= 1 {
		history = 2
	}
	return &Consumer{
		store:   store,
		scorer:  scorer,
		state:   state,
		history: history,
		hist:    make(map[string]*symbolHistory),
	}
}

// Run consumes sealed candles and corrections until the context is done.
func (c *Consumer) Run(ctx context.Context, sealed <-chan models.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case cdl, ok := <-sealed:
			if !ok {
				return
			}
			if err := c.onCandle(ctx, cdl); err != nil {
				logger.Error("score candle %s/%s: %v", cdl.Symbol, cdl.WindowStart, err)
			}
		}
	}
}

func (c *Consumer) onCandle(ctx context.Context, cdl models.Candle) error {
	h, ok := c.hist[cdl.Symbol]
	if !ok {
		h = &symbolHistory{}
		c.hist[cdl.Symbol] = h
	}

	f := c.features(h, cdl)

	direction, confidence, err := c.scorer.Score(ctx, f)
	if err != nil {
		return err
	}

	rec := models.PredictionRecord{
		Symbol:       cdl.Symbol,
		WindowStart:  cdl.WindowStart,
		Direction:    direction,
		Confidence:   confidence,
		ModelVersion: c.scorer.Version(),
		ProducedAt:   time.Now().UTC(),
	}
	if err := c.store.Upsert(ctx, rec); err != nil {
		return err
	}

	// Поправки (окно не позже уже виденных) не двигают историю признаков.
	if cdl.WindowStart.After(h.lastWindow) {
		c.push(h, cdl)
		h.lastWindow = cdl.WindowStart
		c.state.TouchSeal(time.Now())
	}

	return nil
}

func (c *Consumer) features(h *symbolHistory, cdl models.Candle) Features {
	var f Features
	if n := len(h.closes); n > 0 {
		prev := h.closes[n-1]
		if prev > 0 {
			f.Return = (cdl.Close - prev) / prev
		}
	}
	if cdl.Close > 0 {
		f.Range = (cdl.High - cdl.Low) / cdl.Close
	}
	if n := len(h.volumes); n > 0 {
		var sum float64
		for _, v := range h.volumes {
			sum += v
		}
		mean := sum / float64(n)
		if mean > 0 {
			f.VolumeRatio = cdl.Volume / mean
		}
	}
	if n := len(h.returns); n > 0 {
		var sum float64
		for _, r := range h.returns {
			sum += r
		}
		f.Momentum = sum / float64(n)
	}
	return f
}

func (c *Consumer) push(h *symbolHistory, cdl models.Candle) {
	var ret float64
	if n := len(h.closes); n > 0 && h.closes[n-1] > 0 {
		ret = (cdl.Close - h.closes[n-1]) / h.closes[n-1]
	}
	h.closes = append(h.closes, cdl.Close)
	h.volumes = append(h.volumes, cdl.Volume)
	h.returns = append(h.returns, ret)
	if len(h.closes) > c.history {
		h.closes = h.closes[1:]
		h.volumes = h.volumes[1:]
		h.returns = h.returns[1:]
	}
}
