package feed

import (
	"context"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/health/service"
	"trade_sim/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// OffsetSource отдаёт последний закоммиченный offset по символу,
// чтобы после реконнекта подписка продолжилась без дыр.
type OffsetSource interface {
	Offset(ctx context.Context, symbol string) (uint64, bool, error)
}

type Options struct {
	URL          string
	Topic        string
	Symbols      []string
	PingInterval time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Consumer — тонкий адаптер брокерского топика сделок: at-least-once,
// упорядоченность в пределах символа. Дедупликацией занимается агрегатор.
type Consumer struct {
	opts    Options
	offsets OffsetSource
	state   *service.State
	dialer  *websocket.Dialer
}

func NewConsumer(opts Options, offsets OffsetSource, state *service.State) *Consumer {
	return &Consumer{
		opts:    opts,
		offsets: offsets,
		state:   state,
		dialer:  websocket.DefaultDialer,
	}
}

type subscribeArg struct {
	Symbol string `json:"symbol"`
	From   uint64 `json:"from,omitempty"`
}

type subscribeReq struct {
	Op    string         `json:"op"`
	Topic string         `json:"topic"`
	Args  []subscribeArg `json:"args"`
}

type tradeFrame struct {
	Topic string `json:"topic"`
	Data  []struct {
		TradeID     string  `json:"trade_id"`
		Symbol      string  `json:"symbol"`
		Price       float64 `json:"price"`
		Volume      float64 `json:"volume"`
		Side        string  `json:"side"`
		OrderType   string  `json:"order_type"`
		TimestampMS int64   `json:"timestamp_ms"`
		Offset      uint64  `json:"offset"`
	} `json:"data"`
}

// Stream читает топик брокера и шлёт события в out до отмены контекста.
// Реконнект с экспоненциальным backoff; возобновление с последнего
// закоммиченного offset, поэтому повторы неизбежны и ожидаемы.
func (c *Consumer) Stream(ctx context.Context, out chan<- models.TradeEvent) {
	backoff := c.opts.ReconnectMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("feed connect %s topic=%s symbols=%d", c.opts.URL, c.opts.Topic, len(c.opts.Symbols))
		conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			logger.Warn("feed dial error: %v, retry in %s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.opts.ReconnectMax)
			continue
		}

		if err := c.subscribe(ctx, conn); err != nil {
			logger.Warn("feed subscribe error: %v", err)
			_ = conn.Close()
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.opts.ReconnectMax)
			continue
		}

		backoff = c.opts.ReconnectMin
		c.state.SetFeedConnected(true)
		c.readLoop(ctx, conn, out)
		c.state.SetFeedConnected(false)

		select {
		case <-ctx.Done():
			return
		default:
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.opts.ReconnectMax)
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context, conn *websocket.Conn) error {
	args := make([]subscribeArg, 0, len(c.opts.Symbols))
	for _, symbol := range c.opts.Symbols {
		arg := subscribeArg{Symbol: symbol}
		if offset, ok, err := c.offsets.Offset(ctx, symbol); err != nil {
			logger.Warn("offset lookup for %s failed, subscribing from live: %v", symbol, err)
		} else if ok {
			arg.From = offset + 1
		}
		args = append(args, arg)
	}

	payload, err := sonic.Marshal(subscribeReq{Op: "subscribe", Topic: c.opts.Topic, Args: args})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.TradeEvent) {
	// keepalive ping, иначе брокер рвёт тихое соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(c.opts.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`))
			}
		}
	}()

	defer func() { _ = conn.Close() }()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("feed read error: %v", err)
			return
		}

		var frame tradeFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Topic != c.opts.Topic {
			continue
		}

		for _, d := range frame.Data {
			ev := models.TradeEvent{
				TradeID:   d.TradeID,
				Symbol:    d.Symbol,
				Price:     d.Price,
				Volume:    d.Volume,
				Side:      models.Side(d.Side),
				OrderType: models.OrderType(d.OrderType),
				Timestamp: time.UnixMilli(d.TimestampMS).UTC(),
				Offset:    d.Offset,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
