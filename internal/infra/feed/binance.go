package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dperri/crossalert/internal/domain"
)

// BinanceVenue speaks the Binance futures raw stream endpoint with the
// websocket API methods: {"method":"SUBSCRIBE","params":["btcusdt@ticker"]}.
// Unlike the firehose !ticker@arr stream this keeps the subscription set
// per symbol, so unsubscribing a removed alert actually stops the traffic.
type BinanceVenue struct {
	url    string
	nextID atomic.Int64
}

func NewBinance(url string) *BinanceVenue {
	return &BinanceVenue{url: strings.TrimSpace(url)}
}

func (v *BinanceVenue) Name() string {
	return domain.ExchangeBinance
}

func (v *BinanceVenue) URL() string {
	return v.url
}

type binanceMethodMsg struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (v *BinanceVenue) SubscribeMsg(symbols []string) interface{} {
	return binanceMethodMsg{Method: "SUBSCRIBE", Params: binanceStreams(symbols), ID: v.nextID.Add(1)}
}

func (v *BinanceVenue) UnsubscribeMsg(symbols []string) interface{} {
	return binanceMethodMsg{Method: "UNSUBSCRIBE", Params: binanceStreams(symbols), ID: v.nextID.Add(1)}
}

func binanceStreams(symbols []string) []string {
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToLower(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		streams = append(streams, symbol+"@ticker")
	}
	return streams
}

type binanceTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

func (v *BinanceVenue) Parse(data []byte) ([]domain.Tick, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty binance frame")
	}

	if trimmed[0] == '[' {
		var events []binanceTickerEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode binance frame: %w", err)
		}
		return binanceTicks(events), nil
	}

	var event binanceTickerEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("decode binance frame: %w", err)
	}
	// Method acks arrive as {"result":null,"id":n} and decode with no event
	// type; ignore them along with any non-ticker event.
	if !strings.Contains(event.EventType, "Ticker") {
		return nil, nil
	}
	return binanceTicks([]binanceTickerEvent{event}), nil
}

func binanceTicks(events []binanceTickerEvent) []domain.Tick {
	now := time.Now()
	ticks := make([]domain.Tick, 0, len(events))
	for _, event := range events {
		symbol := strings.ToUpper(strings.TrimSpace(event.Symbol))
		priceStr := strings.TrimSpace(event.LastPrice)
		if symbol == "" || priceStr == "" {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, domain.Tick{
			Exchange: domain.ExchangeBinance,
			Symbol:   symbol,
			Price:    price,
			At:       now,
		})
	}
	return ticks
}
