package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusTriggered AlertStatus = "triggered"
	StatusCancelled AlertStatus = "cancelled"
)

// Destination is where a triggered alert is delivered: an opaque bot token
// plus the chat it may post to. Every alert carries its own destination.
type Destination struct {
	BotToken string
	ChatID   string
}

// Alert is a one-shot price-cross alert. At most one active alert exists per
// (DeviceID, Exchange, Symbol); re-adding overwrites the row in place.
type Alert struct {
	ID          uint
	DeviceID    string
	Destination Destination
	Exchange    string
	Symbol      string
	TargetPrice decimal.Decimal
	// HorizPrice is the chart's synchronized horizontal line. Display only,
	// never consulted by matching.
	HorizPrice  *decimal.Decimal
	Condition   string
	Status      AlertStatus
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
