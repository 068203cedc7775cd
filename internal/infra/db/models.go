package db

import "time"

type alertModel struct {
	ID          uint    `gorm:"primaryKey"`
	DeviceID    string  `gorm:"uniqueIndex:idx_alerts_device_exchange_symbol,priority:1;not null"`
	Exchange    string  `gorm:"uniqueIndex:idx_alerts_device_exchange_symbol,priority:2;not null"`
	Symbol      string  `gorm:"uniqueIndex:idx_alerts_device_exchange_symbol,priority:3;not null"`
	BotToken    string  `gorm:"not null"`
	ChatID      string  `gorm:"not null"`
	TargetPrice string  `gorm:"not null"`
	HorizPrice  *string `gorm:""`
	Condition   string  `gorm:"not null;default:cross"`
	Status      string  `gorm:"index;not null;default:active"`
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (alertModel) TableName() string {
	return "alerts"
}
