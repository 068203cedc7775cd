package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dperri/crossalert/internal/domain"
)

// BybitVenue speaks the Bybit v5 public stream: subscriptions are
// {"op":"subscribe","args":["tickers.SYMBOL"]} and ticker pushes carry
// lastPrice under a "tickers.SYMBOL" topic.
type BybitVenue struct {
	url string
}

func NewBybit(url string) *BybitVenue {
	return &BybitVenue{url: strings.TrimSpace(url)}
}

func (v *BybitVenue) Name() string {
	return domain.ExchangeBybit
}

func (v *BybitVenue) URL() string {
	return v.url
}

type bybitOpMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func (v *BybitVenue) SubscribeMsg(symbols []string) interface{} {
	return bybitOpMsg{Op: "subscribe", Args: bybitTopics(symbols)}
}

func (v *BybitVenue) UnsubscribeMsg(symbols []string) interface{} {
	return bybitOpMsg{Op: "unsubscribe", Args: bybitTopics(symbols)}
}

func bybitTopics(symbols []string) []string {
	topics := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		topics = append(topics, "tickers."+symbol)
	}
	return topics
}

type bybitTickerItem struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// The data field is an object for snapshots and an array in some variants.
type bybitDataList []bybitTickerItem

func (d *bybitDataList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []bybitTickerItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*d = items
		return nil
	case '{':
		var item bybitTickerItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return err
		}
		*d = bybitDataList{item}
		return nil
	default:
		return fmt.Errorf("unexpected bybit data: %s", string(trimmed))
	}
}

type bybitStreamMsg struct {
	Topic   string        `json:"topic"`
	Data    bybitDataList `json:"data"`
	Success *bool         `json:"success,omitempty"`
	RetMsg  string        `json:"ret_msg,omitempty"`
}

func (v *BybitVenue) Parse(data []byte) ([]domain.Tick, error) {
	var msg bybitStreamMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode bybit frame: %w", err)
	}

	if msg.Success != nil {
		if !*msg.Success {
			return nil, fmt.Errorf("bybit op rejected: %s", msg.RetMsg)
		}
		return nil, nil
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return nil, nil
	}

	topicSymbol := strings.TrimPrefix(msg.Topic, "tickers.")
	now := time.Now()
	ticks := make([]domain.Tick, 0, len(msg.Data))
	for _, item := range msg.Data {
		symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))
		if symbol == "" {
			symbol = topicSymbol
		}
		priceStr := strings.TrimSpace(item.LastPrice)
		if priceStr == "" {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, domain.Tick{
			Exchange: domain.ExchangeBybit,
			Symbol:   symbol,
			Price:    price,
			At:       now,
		})
	}
	return ticks, nil
}
