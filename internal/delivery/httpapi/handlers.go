package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/dperri/crossalert/internal/usecase"
	"go.uber.org/zap"
)

// Handlers expose the alert store mutations consumed by the chart client:
// upsert, remove, list, plus the open_trade deep link behind the
// notification button.
type Handlers struct {
	alerts *usecase.AlertUsecase
	logger *zap.Logger
}

func NewHandlers(alerts *usecase.AlertUsecase, logger *zap.Logger) *Handlers {
	return &Handlers{alerts: alerts, logger: logger}
}

func (h *Handlers) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /add_alert", h.handleUpsertAlert)
	mux.HandleFunc("POST /update_alert", h.handleUpsertAlert)
	mux.HandleFunc("POST /remove_alert", h.handleRemoveAlert)
	mux.HandleFunc("GET /alerts", h.handleListAlerts)
	mux.HandleFunc("GET /open_trade", h.handleOpenTrade)
	mux.HandleFunc("GET /{$}", h.handleHealth)
	return mux
}

type alertRequest struct {
	DeviceID    string       `json:"device_id"`
	BotToken    string       `json:"bot_token"`
	ChatID      string       `json:"chat_id"`
	Exchange    string       `json:"exchange"`
	Symbol      string       `json:"symbol"`
	TargetPrice *json.Number `json:"target_price"`
	HorizPrice  *json.Number `json:"horiz_price"`
	Condition   string       `json:"condition"`
}

type alertResponse struct {
	ID          uint    `json:"id"`
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	TargetPrice string  `json:"target_price"`
	HorizPrice  *string `json:"horiz_price,omitempty"`
	Condition   string  `json:"condition"`
	Status      string  `json:"status"`
	TriggeredAt *string `json:"triggered_at,omitempty"`
}

func (h *Handlers) handleUpsertAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" || req.BotToken == "" || req.ChatID == "" ||
		req.Exchange == "" || req.Symbol == "" || req.TargetPrice == nil {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	horiz := ""
	if req.HorizPrice != nil {
		horiz = req.HorizPrice.String()
	}

	alert, err := h.alerts.AddOrUpdate(r.Context(), usecase.AlertRequest{
		DeviceID:    req.DeviceID,
		BotToken:    req.BotToken,
		ChatID:      req.ChatID,
		Exchange:    req.Exchange,
		Symbol:      req.Symbol,
		TargetPrice: req.TargetPrice.String(),
		HorizPrice:  horiz,
		Condition:   req.Condition,
	})
	if err != nil {
		h.logger.Warn("upsert alert failed",
			zap.String("device_id", req.DeviceID),
			zap.String("exchange", req.Exchange),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	h.logger.Info("alert upserted",
		zap.Uint("alert_id", alert.ID),
		zap.String("device_id", alert.DeviceID),
		zap.String("exchange", alert.Exchange),
		zap.String("symbol", alert.Symbol),
		zap.String("target", alert.TargetPrice.String()),
	)

	status := "added"
	if strings.HasSuffix(r.URL.Path, "/update_alert") {
		status = "updated"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type removeRequest struct {
	DeviceID string `json:"device_id"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

func (h *Handlers) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" || req.Exchange == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	if err := h.alerts.Remove(r.Context(), req.DeviceID, req.Exchange, req.Symbol); err != nil {
		h.logger.Warn("remove alert failed",
			zap.String("device_id", req.DeviceID),
			zap.String("exchange", req.Exchange),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	h.logger.Info("alert removed",
		zap.String("device_id", req.DeviceID),
		zap.String("exchange", req.Exchange),
		zap.String("symbol", req.Symbol),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "missing device_id")
		return
	}

	alerts, err := h.alerts.List(r.Context(), deviceID)
	if err != nil {
		h.logger.Warn("list alerts failed", zap.String("device_id", deviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, mapAlertResponse(alert))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Server alive – %s", time.Now().Format("2006-01-02 15:04:05"))
}

func (h *Handlers) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToLower(r.URL.Query().Get("exchange"))
	symbol := r.URL.Query().Get("symbol")
	if exchange == "" || symbol == "" {
		http.Error(w, "Missing parameters", http.StatusBadRequest)
		return
	}

	var webURL, appScheme string
	switch exchange {
	case domain.ExchangeBinance:
		webURL = fmt.Sprintf("https://www.binance.com/en/futures/%s", symbol)
		appScheme = fmt.Sprintf("binance://futures/trade?symbol=%s", symbol)
	case domain.ExchangeBybit:
		webURL = fmt.Sprintf("https://www.bybit.com/trade/usdt/%s", symbol)
		appScheme = fmt.Sprintf("bybit://trade/usdt/%s", symbol)
	default:
		http.Error(w, "Unsupported exchange", http.StatusBadRequest)
		return
	}

	if isMobile(r.UserAgent()) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><script>
    window.location = %q;
    setTimeout(() => { window.location = %q; }, 2000);
</script></body></html>`, appScheme, webURL)
		return
	}
	http.Redirect(w, r, webURL, http.StatusFound)
}

func isMobile(userAgent string) bool {
	userAgent = strings.ToLower(userAgent)
	for _, keyword := range []string{"mobile", "android", "iphone", "ipad"} {
		if strings.Contains(userAgent, keyword) {
			return true
		}
	}
	return false
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidExchange),
		errors.Is(err, usecase.ErrInvalidSymbol),
		errors.Is(err, usecase.ErrInvalidTarget),
		errors.Is(err, usecase.ErrInvalidHorizPrice),
		errors.Is(err, usecase.ErrMissingDestination):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func mapAlertResponse(alert domain.Alert) alertResponse {
	var horiz *string
	if alert.HorizPrice != nil {
		value := alert.HorizPrice.String()
		horiz = &value
	}
	var triggeredAt *string
	if alert.TriggeredAt != nil {
		value := alert.TriggeredAt.UTC().Format(time.RFC3339)
		triggeredAt = &value
	}
	return alertResponse{
		ID:          alert.ID,
		Exchange:    alert.Exchange,
		Symbol:      alert.Symbol,
		TargetPrice: alert.TargetPrice.String(),
		HorizPrice:  horiz,
		Condition:   alert.Condition,
		Status:      string(alert.Status),
		TriggeredAt: triggeredAt,
	}
}
