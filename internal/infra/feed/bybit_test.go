package feed

import (
	"encoding/json"
	"testing"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestBybitSubscribeMsg(t *testing.T) {
	venue := NewBybit("wss://stream.bybit.com/v5/public/linear")

	data, err := json.Marshal(venue.SubscribeMsg([]string{"btcusdt", " ETHUSDT "}))
	require.NoError(t, err)
	require.JSONEq(t, `{"op":"subscribe","args":["tickers.BTCUSDT","tickers.ETHUSDT"]}`, string(data))

	data, err = json.Marshal(venue.UnsubscribeMsg([]string{"BTCUSDT"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"op":"unsubscribe","args":["tickers.BTCUSDT"]}`, string(data))
}

func TestBybitParseSnapshot(t *testing.T) {
	venue := NewBybit("wss://example")

	frame := `{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{"symbol":"BTCUSDT","lastPrice":"50123.5"}}`
	ticks, err := venue.Parse([]byte(frame))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Equal(t, domain.ExchangeBybit, ticks[0].Exchange)
	require.Equal(t, "BTCUSDT", ticks[0].Symbol)
	require.Equal(t, 50123.5, ticks[0].Price)
}

func TestBybitParseDataArray(t *testing.T) {
	venue := NewBybit("wss://example")

	frame := `{"topic":"tickers.ETHUSDT","data":[{"symbol":"ETHUSDT","lastPrice":"2001.25"}]}`
	ticks, err := venue.Parse([]byte(frame))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Equal(t, 2001.25, ticks[0].Price)
}

func TestBybitParseAcks(t *testing.T) {
	venue := NewBybit("wss://example")

	ticks, err := venue.Parse([]byte(`{"success":true,"ret_msg":"","op":"subscribe"}`))
	require.NoError(t, err)
	require.Empty(t, ticks)

	_, err = venue.Parse([]byte(`{"success":false,"ret_msg":"invalid topic","op":"subscribe"}`))
	require.Error(t, err)
}

func TestBybitParseIgnoresOtherTopics(t *testing.T) {
	venue := NewBybit("wss://example")

	ticks, err := venue.Parse([]byte(`{"topic":"orderbook.50.BTCUSDT","data":{}}`))
	require.NoError(t, err)
	require.Empty(t, ticks)
}

func TestBybitParseMalformed(t *testing.T) {
	venue := NewBybit("wss://example")

	_, err := venue.Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestBybitParseSkipsEmptyPrice(t *testing.T) {
	venue := NewBybit("wss://example")

	frame := `{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":""}}`
	ticks, err := venue.Parse([]byte(frame))
	require.NoError(t, err)
	require.Empty(t, ticks)
}
