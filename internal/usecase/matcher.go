package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, dest domain.Destination, text, exchange, symbol string) error
}

type priceKey struct {
	exchange string
	symbol   string
}

// Matcher runs the periodic matching pass: for every active alert it compares
// the cached price against the price remembered from the previous pass and
// fires the alert when the target was crossed in between. The conditional
// store transition guarantees a single winner even when passes overlap.
type Matcher struct {
	alerts        domain.AlertRepository
	cache         *PriceCache
	notifier      Notifier
	interval      time.Duration
	notifyTimeout time.Duration
	logger        *zap.Logger

	mu   sync.Mutex
	prev map[priceKey]float64
}

func NewMatcher(alerts domain.AlertRepository, cache *PriceCache, notifier Notifier, interval, notifyTimeout time.Duration, logger *zap.Logger) *Matcher {
	return &Matcher{
		alerts:        alerts,
		cache:         cache,
		notifier:      notifier,
		interval:      interval,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		prev:          make(map[priceKey]float64),
	}
}

// Run drives matching passes at the configured interval until ctx ends.
func (m *Matcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll performs one matching pass. A store read failure skips the pass;
// the next tick retries.
func (m *Matcher) CheckAll(ctx context.Context) {
	alerts, err := m.alerts.ListActive(ctx)
	if err != nil {
		m.logger.Warn("matching pass skipped, store unavailable", zap.Error(err))
		return
	}

	// All alerts on the same symbol must see the same (prev, curr) pair, so
	// group first and advance the previous-price memory only after a whole
	// batch is evaluated.
	groups := make(map[priceKey][]domain.Alert)
	order := make([]priceKey, 0, len(alerts))
	for _, alert := range alerts {
		key := priceKey{exchange: alert.Exchange, symbol: alert.Symbol}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], alert)
	}

	for _, key := range order {
		curr, ok := m.cache.Get(key.exchange, key.symbol)
		if !ok {
			continue
		}

		// First sight of a symbol seeds the memory instead of firing.
		prev, seen := m.prevPrice(key)
		if !seen {
			prev = curr
		}

		for _, alert := range groups[key] {
			if crossed(prev, curr, alert.TargetPrice) {
				m.trigger(ctx, alert, curr)
			}
		}
		m.setPrevPrice(key, curr)
	}
}

// crossed reports whether target was crossed between the two observations,
// in either direction, inclusive of landing exactly on target. A price
// pinned at the target (prev == curr == target) is not a crossing.
func crossed(prev, curr float64, target decimal.Decimal) bool {
	prevD := decimal.NewFromFloat(prev)
	currD := decimal.NewFromFloat(curr)
	up := prevD.LessThan(target) && target.LessThanOrEqual(currD)
	down := prevD.GreaterThan(target) && target.GreaterThanOrEqual(currD)
	return up || down
}

func (m *Matcher) trigger(ctx context.Context, alert domain.Alert, price float64) {
	won, err := m.alerts.MarkTriggered(ctx, alert.ID, time.Now())
	if err != nil {
		m.logger.Warn("trigger transition failed",
			zap.Uint("alert_id", alert.ID),
			zap.String("exchange", alert.Exchange),
			zap.String("symbol", alert.Symbol),
			zap.Error(err),
		)
		return
	}
	if !won {
		// A concurrent pass got there first; it owns the notification.
		m.logger.Debug("alert already triggered elsewhere", zap.Uint("alert_id", alert.ID))
		return
	}

	m.logger.Info("alert triggered",
		zap.Uint("alert_id", alert.ID),
		zap.String("exchange", alert.Exchange),
		zap.String("symbol", alert.Symbol),
		zap.Float64("price", price),
		zap.String("target", alert.TargetPrice.String()),
	)

	text := formatAlertMessage(alert, price)
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
		defer cancel()
		if err := m.notifier.Notify(nctx, alert.Destination, text, alert.Exchange, alert.Symbol); err != nil {
			m.logger.Warn("alert notification failed",
				zap.Uint("alert_id", alert.ID),
				zap.String("chat_id", alert.Destination.ChatID),
				zap.Error(err),
			)
		}
	}()
}

func formatAlertMessage(alert domain.Alert, price float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>ALERT %s %s</b>\n", strings.ToUpper(alert.Exchange), alert.Symbol)
	fmt.Fprintf(&b, "Price reached: <b>%.8f</b>\n", price)
	fmt.Fprintf(&b, "Target: <b>%s</b>", alert.TargetPrice.StringFixed(8))
	if alert.HorizPrice != nil {
		fmt.Fprintf(&b, "\nSynchronized line: <b>%s</b>", alert.HorizPrice.StringFixed(8))
	}
	b.WriteString("\n\n⚠️ Alert triggered and cancelled automatically.")
	return b.String()
}

func (m *Matcher) prevPrice(key priceKey) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prev[key]
	return price, ok
}

func (m *Matcher) setPrevPrice(key priceKey, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev[key] = price
}
