package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"go.uber.org/zap"
)

// Notifier posts alert messages straight to the Bot API. Each alert carries
// its own bot token, so there is no per-bot client to hold; one attempt,
// bounded timeout, no retries.
type Notifier struct {
	apiBase      string
	serverDomain string
	client       *http.Client
	logger       *zap.Logger
}

func NewNotifier(apiBase, serverDomain string, timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		apiBase:      strings.TrimRight(apiBase, "/"),
		serverDomain: strings.TrimRight(serverDomain, "/"),
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, dest domain.Destination, text, exchange, symbol string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, dest.BotToken)
	tradeURL := fmt.Sprintf("%s/open_trade?exchange=%s&symbol=%s",
		n.serverDomain, url.QueryEscape(exchange), url.QueryEscape(symbol))

	payload := map[string]interface{}{
		"chat_id":    dest.ChatID,
		"text":       text,
		"parse_mode": "HTML",
		"reply_markup": map[string]interface{}{
			"inline_keyboard": [][]map[string]string{
				{{"text": "Open Trade Now", "url": tradeURL}},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	n.logger.Info("telegram notify send",
		zap.String("chat_id", dest.ChatID),
		zap.String("exchange", exchange),
		zap.String("symbol", symbol),
	)

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", response.StatusCode, string(respBody))
	}
	return nil
}
