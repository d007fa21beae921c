package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticMarketData is an in-process market data provider seeded with
// known prices. It backs strategy previews and expiry moneyness checks;
// swap it for a real feed by implementing interfaces.MarketDataService.
type StaticMarketData struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticMarketData creates an empty price table
func NewStaticMarketData() *StaticMarketData {
	return &StaticMarketData{
		prices: make(map[string]decimal.Decimal),
	}
}

// SetPrice seeds or updates the price for a ticker
func (m *StaticMarketData) SetPrice(ticker string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = price
}

// PriceOf returns the seeded price for a ticker
func (m *StaticMarketData) PriceOf(ctx context.Context, ticker string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s: %w", ticker, ErrNotFound)
	}
	return price, nil
}
