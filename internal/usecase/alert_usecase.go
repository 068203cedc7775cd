package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidExchange    = errors.New("invalid exchange")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrInvalidTarget      = errors.New("invalid target price")
	ErrInvalidHorizPrice  = errors.New("invalid horizontal price")
	ErrMissingDestination = errors.New("missing destination")
)

// AlertRequest carries one add-or-update request from the API layer.
// TargetPrice and HorizPrice are raw strings; validation happens here.
type AlertRequest struct {
	DeviceID    string
	BotToken    string
	ChatID      string
	Exchange    string
	Symbol      string
	TargetPrice string
	HorizPrice  string
	Condition   string
}

type AlertUsecase struct {
	alerts domain.AlertRepository
	syncer *SubscriptionSyncer
	logger *zap.Logger
}

func NewAlertUsecase(alerts domain.AlertRepository, syncer *SubscriptionSyncer, logger *zap.Logger) *AlertUsecase {
	return &AlertUsecase{alerts: alerts, syncer: syncer, logger: logger}
}

// AddOrUpdate upserts the alert keyed by (device, exchange, symbol) and
// always resets it to active. The affected exchange is reconciled afterwards
// so the feed starts streaming the symbol without waiting for the sweep.
func (u *AlertUsecase) AddOrUpdate(ctx context.Context, req AlertRequest) (*domain.Alert, error) {
	exchange, symbol, err := normalizeKey(req.Exchange, req.Symbol)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.BotToken) == "" || strings.TrimSpace(req.ChatID) == "" {
		return nil, ErrMissingDestination
	}

	target, err := decimal.NewFromString(strings.TrimSpace(req.TargetPrice))
	if err != nil || !target.IsPositive() {
		return nil, ErrInvalidTarget
	}

	var horiz *decimal.Decimal
	if strings.TrimSpace(req.HorizPrice) != "" {
		value, err := decimal.NewFromString(strings.TrimSpace(req.HorizPrice))
		if err != nil {
			return nil, ErrInvalidHorizPrice
		}
		horiz = &value
	}

	condition := strings.TrimSpace(req.Condition)
	if condition == "" {
		condition = "cross"
	}

	alert := &domain.Alert{
		DeviceID: strings.TrimSpace(req.DeviceID),
		Destination: domain.Destination{
			BotToken: strings.TrimSpace(req.BotToken),
			ChatID:   strings.TrimSpace(req.ChatID),
		},
		Exchange:    exchange,
		Symbol:      symbol,
		TargetPrice: target,
		HorizPrice:  horiz,
		Condition:   condition,
		Status:      domain.StatusActive,
	}

	if err := u.alerts.Upsert(ctx, alert); err != nil {
		return nil, err
	}

	u.reconcile(ctx, exchange)
	return alert, nil
}

// Remove soft-cancels the alert. Removing a key that has no alert is a no-op.
func (u *AlertUsecase) Remove(ctx context.Context, deviceID, exchange, symbol string) error {
	exchange, symbol, err := normalizeKey(exchange, symbol)
	if err != nil {
		return err
	}

	if err := u.alerts.Cancel(ctx, strings.TrimSpace(deviceID), exchange, symbol); err != nil {
		return err
	}

	u.reconcile(ctx, exchange)
	return nil
}

func (u *AlertUsecase) List(ctx context.Context, deviceID string) ([]domain.Alert, error) {
	return u.alerts.ListByDevice(ctx, strings.TrimSpace(deviceID))
}

func (u *AlertUsecase) reconcile(ctx context.Context, exchange string) {
	if u.syncer == nil {
		return
	}
	if err := u.syncer.Reconcile(ctx, exchange); err != nil {
		u.logger.Warn("subscription reconcile failed", zap.String("exchange", exchange), zap.Error(err))
	}
}

func normalizeKey(exchange, symbol string) (string, string, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	if !domain.KnownExchange(exchange) {
		return "", "", ErrInvalidExchange
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", "", ErrInvalidSymbol
	}
	return exchange, symbol, nil
}
