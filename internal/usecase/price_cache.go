package usecase

import (
	"math"
	"sync"
)

// PriceCache holds the latest known price per (exchange, symbol). Feed
// adapters write, the matcher reads; there is no ordering guarantee across
// exchanges and no history beyond the current value.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]map[string]float64
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]map[string]float64)}
}

// Set overwrites the latest price. Non-finite and non-positive quotes are
// ignored; some venues briefly quote zero on thin symbols.
func (c *PriceCache) Set(exchange, symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	symbols, ok := c.prices[exchange]
	if !ok {
		symbols = make(map[string]float64)
		c.prices[exchange] = symbols
	}
	symbols[symbol] = price
}

// Get returns the latest price, or false if no tick was ever received.
func (c *PriceCache) Get(exchange, symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, ok := c.prices[exchange][symbol]
	return price, ok
}
