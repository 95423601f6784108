package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	DB      string `mapstructure:"db_dsn"`
	Service struct {
		Name      string `mapstructure:"name"`
		AdminAddr string `mapstructure:"admin_addr"`
	} `mapstructure:"service"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Jaeger struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`

	Feed struct {
		URL          string        `mapstructure:"url"`
		Topic        string        `mapstructure:"topic"`
		Symbols      []string      `mapstructure:"symbols"`
		PingInterval time.Duration `mapstructure:"ping_interval"`
		// Границы backoff при реконнекте.
		ReconnectMin time.Duration `mapstructure:"reconnect_min"`
		ReconnectMax time.Duration `mapstructure:"reconnect_max"`
	} `mapstructure:"feed"`

	Aggregator struct {
		WindowSize time.Duration `mapstructure:"window_size"`
		// Grace — сколько назад от watermark принимаем опоздавшие сделки.
		Grace          time.Duration `mapstructure:"grace"`
		PersistRetries int           `mapstructure:"persist_retries"`
		RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
		// BufferMax — предел памяти под свечи, не записанные в store.
		// Переполнение = потеря данных, поднимаем fatal-алерт.
		BufferMax int `mapstructure:"buffer_max"`
	} `mapstructure:"aggregator"`

	Prediction struct {
		ModelVersion int `mapstructure:"model_version"`
		History      int `mapstructure:"history"`
	} `mapstructure:"prediction"`

	Strategy struct {
		Symbol       string  `mapstructure:"symbol"`
		StartingCash float64 `mapstructure:"starting_cash"`
		// Balanced: сколько подряд окон должно держаться направление
		// и какую долю кэша/позиции двигаем за раз.
		BalancedWindows  int     `mapstructure:"balanced_windows"`
		BalancedFraction float64 `mapstructure:"balanced_fraction"`
		// UltraAggressive: порог уверенности для повторных действий.
		UltraConfidence float64 `mapstructure:"ultra_confidence"`
	} `mapstructure:"strategy"`

	Scheduler struct {
		TickSpec         string        `mapstructure:"tick_spec"`
		RecoverySpec     string        `mapstructure:"recovery_spec"`
		RecoveryLookback time.Duration `mapstructure:"recovery_lookback"`
	} `mapstructure:"scheduler"`
}

func NewConfig() (*Config, error) {
	v := viper.New()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	v.SetConfigFile("configs/" + configFileName)

	v.SetDefault("service.name", "trade_sim")
	v.SetDefault("service.admin_addr", ":8080")

	v.SetDefault("feed.topic", "trades")
	v.SetDefault("feed.ping_interval", "20s")
	v.SetDefault("feed.reconnect_min", "1s")
	v.SetDefault("feed.reconnect_max", "30s")

	v.SetDefault("aggregator.window_size", "60s")
	v.SetDefault("aggregator.grace", "120s")
	v.SetDefault("aggregator.persist_retries", 3)
	v.SetDefault("aggregator.retry_backoff", "200ms")
	v.SetDefault("aggregator.buffer_max", 256)

	v.SetDefault("prediction.model_version", 1)
	v.SetDefault("prediction.history", 20)

	v.SetDefault("strategy.symbol", "BTC-USDT")
	v.SetDefault("strategy.starting_cash", 1000)
	v.SetDefault("strategy.balanced_windows", 3)
	v.SetDefault("strategy.balanced_fraction", 0.5)
	v.SetDefault("strategy.ultra_confidence", 0.8)

	v.SetDefault("scheduler.tick_spec", "@every 5m")
	v.SetDefault("scheduler.recovery_spec", "@every 1h")
	v.SetDefault("scheduler.recovery_lookback", "2h")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "decode config file")
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}

	if config.Aggregator.WindowSize <= 0 {
		return nil, errors.New("aggregator.window_size must be positive")
	}
	if config.Aggregator.Grace < 0 {
		return nil, errors.New("aggregator.grace must not be negative")
	}
	if config.Strategy.BalancedFraction <= 0 || config.Strategy.BalancedFraction > 1 {
		return nil, errors.New("strategy.balanced_fraction must be in (0,1]")
	}

	return &config, nil
}
