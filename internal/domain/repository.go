package domain

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type AlertRepository interface {
	// Upsert inserts the alert or, when a row for (DeviceID, Exchange,
	// Symbol) already exists, overwrites target, reference line, destination
	// and condition, resets status to active and clears triggered_at.
	Upsert(ctx context.Context, alert *Alert) error
	// Cancel soft-cancels the alert for the key. Cancelling a key that has
	// no row is a no-op.
	Cancel(ctx context.Context, deviceID, exchange, symbol string) error
	ListActive(ctx context.Context) ([]Alert, error)
	ListByDevice(ctx context.Context, deviceID string) ([]Alert, error)
	// MarkTriggered transitions the alert to triggered, conditional on its
	// current status being active. Returns false when a concurrent pass has
	// already claimed the alert; the caller must then suppress its
	// notification.
	MarkTriggered(ctx context.Context, alertID uint, at time.Time) (bool, error)
}
