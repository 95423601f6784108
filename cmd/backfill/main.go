package main

import (
	"context"
	"flag"
	"log"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/aggregator"
	aggregatorpg "trade_sim/internal/modules/aggregator/pg"
	"trade_sim/internal/modules/config"
	"trade_sim/internal/notify"
	"trade_sim/pkg/db"
	"trade_sim/pkg/logger"
)

// backfill — разовая пересборка свечей из сохранённых сделок.
//
//	backfill -symbol BTC-USDT -from 2026-08-01T00:00:00Z -to 2026-08-02T00:00:00Z
func main() {
	var (
		symbol  = flag.String("symbol", "", "symbol to rebuild (empty: all known)")
		fromArg = flag.String("from", "", "range start, RFC3339")
		toArg   = flag.String("to", "", "range end, RFC3339 (default: now)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	logger.SetServiceName(cfg.Service.Name)

	from, err := time.Parse(time.RFC3339, *fromArg)
	if err != nil {
		logger.Fatal("bad -from: %v", err)
	}
	to := time.Now().UTC()
	if *toArg != "" {
		if to, err = time.Parse(time.RFC3339, *toArg); err != nil {
			logger.Fatal("bad -to: %v", err)
		}
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		logger.Fatal("db: %v", err)
	}
	tx := db.NewPgTxManager(pool)
	defer tx.Close()

	store := aggregatorpg.New(tx)

	// Исправленные свечи уходят в канал, но подписчиков у разового запуска
	// нет: даунстрим подберёт их из store при следующей сверке.
	sealed := make(chan models.Candle, 1024)
	go func() {
		for range sealed {
		}
	}()

	m := aggregator.NewManager(aggregator.Options{
		WindowSize:     cfg.Aggregator.WindowSize,
		Grace:          cfg.Aggregator.Grace,
		PersistRetries: cfg.Aggregator.PersistRetries,
		RetryBackoff:   cfg.Aggregator.RetryBackoff,
		BufferMax:      cfg.Aggregator.BufferMax,
	}, store, notify.Noop{}, sealed)

	symbols := cfg.Feed.Symbols
	if *symbol != "" {
		symbols = []string{*symbol}
	}

	for _, s := range symbols {
		corrected, err := m.Reconcile(ctx, s, from, to)
		if err != nil {
			logger.Error("reconcile %s: %v", s, err)
			continue
		}
		logger.Info("reconcile %s: %d candles corrected", s, corrected)
	}
}
