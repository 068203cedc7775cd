package domain

import "time"

const (
	ExchangeBybit   = "bybit"
	ExchangeBinance = "binance"
)

func KnownExchange(name string) bool {
	return name == ExchangeBybit || name == ExchangeBinance
}

// Tick is one normalized price observation from a venue stream.
type Tick struct {
	Exchange string
	Symbol   string
	Price    float64
	At       time.Time
}

// PriceSink receives normalized ticks from feed adapters.
type PriceSink interface {
	Set(exchange, symbol string, price float64)
}

// FeedAdapter is the live subscription surface of one venue's price stream.
// Subscribe and Unsubscribe are best effort: while the adapter is
// disconnected the command is dropped, and the reconnect path re-derives the
// full required set instead.
type FeedAdapter interface {
	Exchange() string
	Subscribe(symbol string)
	Unsubscribe(symbol string)
	Subscribed() []string
}
