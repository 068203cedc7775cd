package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	DBDriver          string        `env:"DB_DRIVER,default=postgres"`
	DBPath            string        `env:"DB_PATH,default=alerts.db"`
	DBHost            string        `env:"DB_HOST,default=localhost"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,default=postgres"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=crossalert"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	BybitWSURL         string        `env:"BYBIT_WS_URL,default=wss://stream.bybit.com/v5/public/linear"`
	BinanceWSURL       string        `env:"BINANCE_WS_URL,default=wss://fstream.binance.com/ws"`
	FeedReconnectDelay time.Duration `env:"FEED_RECONNECT_DELAY,default=5s"`
	FeedDialTimeout    time.Duration `env:"FEED_DIAL_TIMEOUT,default=10s"`

	MatchInterval time.Duration `env:"MATCH_INTERVAL,default=5s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=30s"`

	TelegramAPIBaseURL string        `env:"TELEGRAM_API_BASE_URL,default=https://api.telegram.org"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT,default=10s"`
	ServerDomain       string        `env:"SERVER_DOMAIN,default=https://srazu-bot.onrender.com"`

	HTTPAddr string `env:"HTTP_ADDR,default=:5000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
