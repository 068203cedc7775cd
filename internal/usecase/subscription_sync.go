package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"go.uber.org/zap"
)

// ActiveSymbols returns the symbols that currently have an active alert on
// the exchange. Shared by the synchronizer and the adapters' reconnect path.
func ActiveSymbols(ctx context.Context, alerts domain.AlertRepository, exchange string) ([]string, error) {
	active, err := alerts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	symbols := make([]string, 0, len(active))
	for _, alert := range active {
		if alert.Exchange != exchange {
			continue
		}
		if _, ok := seen[alert.Symbol]; ok {
			continue
		}
		seen[alert.Symbol] = struct{}{}
		symbols = append(symbols, alert.Symbol)
	}
	return symbols, nil
}

// SubscriptionSyncer reconciles the symbol set required by active alerts
// against what each feed adapter is actually streaming. Reconcile is
// idempotent: with no intervening alert changes a second call issues
// nothing.
type SubscriptionSyncer struct {
	alerts   domain.AlertRepository
	adapters map[string]domain.FeedAdapter
	interval time.Duration
	logger   *zap.Logger

	mu sync.Mutex
}

func NewSubscriptionSyncer(alerts domain.AlertRepository, adapters []domain.FeedAdapter, interval time.Duration, logger *zap.Logger) *SubscriptionSyncer {
	byExchange := make(map[string]domain.FeedAdapter, len(adapters))
	for _, adapter := range adapters {
		byExchange[adapter.Exchange()] = adapter
	}
	return &SubscriptionSyncer{
		alerts:   alerts,
		adapters: byExchange,
		interval: interval,
		logger:   logger,
	}
}

func (s *SubscriptionSyncer) Reconcile(ctx context.Context, exchange string) error {
	adapter, ok := s.adapters[exchange]
	if !ok {
		return fmt.Errorf("no feed adapter for exchange %q", exchange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	symbols, err := ActiveSymbols(ctx, s.alerts, exchange)
	if err != nil {
		return fmt.Errorf("list active symbols: %w", err)
	}
	desired := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		desired[symbol] = struct{}{}
	}

	current := make(map[string]struct{})
	for _, symbol := range adapter.Subscribed() {
		current[symbol] = struct{}{}
	}

	added, removed := 0, 0
	for symbol := range desired {
		if _, ok := current[symbol]; !ok {
			adapter.Subscribe(symbol)
			added++
		}
	}
	for symbol := range current {
		if _, ok := desired[symbol]; !ok {
			adapter.Unsubscribe(symbol)
			removed++
		}
	}

	if added > 0 || removed > 0 {
		s.logger.Info("subscriptions reconciled",
			zap.String("exchange", exchange),
			zap.Int("subscribed", added),
			zap.Int("unsubscribed", removed),
		)
	}
	return nil
}

func (s *SubscriptionSyncer) ReconcileAll(ctx context.Context) {
	for exchange := range s.adapters {
		if err := s.Reconcile(ctx, exchange); err != nil {
			s.logger.Warn("reconcile failed", zap.String("exchange", exchange), zap.Error(err))
		}
	}
}

// Run is the self-healing sweep: it re-reconciles every exchange on a fixed
// timer, catching commands that were dropped while an adapter was down.
func (s *SubscriptionSyncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ReconcileAll(ctx)
		}
	}
}
