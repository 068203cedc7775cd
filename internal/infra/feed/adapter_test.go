package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu    sync.Mutex
	ticks []domain.Tick
}

func (s *recordingSink) Set(exchange, symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, domain.Tick{Exchange: exchange, Symbol: symbol, Price: price})
}

func (s *recordingSink) all() []domain.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Tick(nil), s.ticks...)
}

func newTestAdapter(sink domain.PriceSink) *Adapter {
	required := func(ctx context.Context) ([]string, error) { return nil, nil }
	return NewAdapter(NewBybit("wss://example"), sink, required, 10*time.Millisecond, time.Second, zap.NewNop())
}

func TestAdapterForwardsTicks(t *testing.T) {
	sink := &recordingSink{}
	adapter := newTestAdapter(sink)

	adapter.handleFrame([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"50123.5"}}`))

	ticks := sink.all()
	require.Len(t, ticks, 1)
	require.Equal(t, 50123.5, ticks[0].Price)
}

func TestAdapterFiltersNonPositivePrices(t *testing.T) {
	sink := &recordingSink{}
	adapter := newTestAdapter(sink)

	adapter.handleFrame([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"0"}}`))
	adapter.handleFrame([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"-1"}}`))

	require.Empty(t, sink.all())
}

func TestAdapterSwallowsMalformedFrames(t *testing.T) {
	sink := &recordingSink{}
	adapter := newTestAdapter(sink)

	adapter.handleFrame([]byte(`garbage`))
	adapter.handleFrame([]byte(``))

	require.Empty(t, sink.all())
}

func TestAdapterDropsCommandsWhileDisconnected(t *testing.T) {
	adapter := newTestAdapter(&recordingSink{})

	// Never connected: commands are dropped, not queued.
	adapter.Subscribe("BTCUSDT")
	adapter.Unsubscribe("BTCUSDT")

	require.Empty(t, adapter.Subscribed())
}

func TestAdapterExchangeName(t *testing.T) {
	adapter := newTestAdapter(&recordingSink{})
	require.Equal(t, domain.ExchangeBybit, adapter.Exchange())
}

func TestAdapterRunStopsOnCancel(t *testing.T) {
	adapter := newTestAdapter(&recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adapter.Run(ctx)
	}()

	// Let it cycle through at least one failed dial and the fixed delay.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop on context cancel")
	}
}
