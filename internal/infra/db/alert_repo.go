package db

import (
	"context"
	"fmt"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Upsert(ctx context.Context, alert *domain.Alert) error {
	model := mapAlertToModel(*alert)
	model.Status = string(domain.StatusActive)
	model.TriggeredAt = nil

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "exchange"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bot_token", "chat_id", "target_price", "horiz_price",
			"condition", "status", "triggered_at", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return err
	}

	// On conflict the insert path does not report the surviving row's ID on
	// every driver, so read the row back by its key.
	var stored alertModel
	err = r.db.WithContext(ctx).
		Where("device_id = ? AND exchange = ? AND symbol = ?", alert.DeviceID, alert.Exchange, alert.Symbol).
		First(&stored).Error
	if err != nil {
		return err
	}

	mapped, err := mapAlertToDomain(stored)
	if err != nil {
		return err
	}
	*alert = mapped
	return nil
}

func (r *AlertRepository) Cancel(ctx context.Context, deviceID, exchange, symbol string) error {
	return r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("device_id = ? AND exchange = ? AND symbol = ?", deviceID, exchange, symbol).
		Update("status", string(domain.StatusCancelled)).Error
}

func (r *AlertRepository) ListActive(ctx context.Context) ([]domain.Alert, error) {
	var models []alertModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusActive)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapAlertsToDomain(models)
}

func (r *AlertRepository) ListByDevice(ctx context.Context, deviceID string) ([]domain.Alert, error) {
	var models []alertModel
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapAlertsToDomain(models)
}

// MarkTriggered is the atomic trigger transition: the status guard in the
// WHERE clause makes concurrent matching passes race for a single row update,
// and only the winner sees RowsAffected == 1.
func (r *AlertRepository) MarkTriggered(ctx context.Context, alertID uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ? AND status = ?", alertID, string(domain.StatusActive)).
		Updates(map[string]interface{}{
			"status":       string(domain.StatusTriggered),
			"triggered_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func mapAlertsToDomain(models []alertModel) ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0, len(models))
	for _, model := range models {
		alert, err := mapAlertToDomain(model)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func mapAlertToDomain(model alertModel) (domain.Alert, error) {
	target, err := decimal.NewFromString(model.TargetPrice)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("alert %d: parse target_price: %w", model.ID, err)
	}

	var horiz *decimal.Decimal
	if model.HorizPrice != nil {
		value, err := decimal.NewFromString(*model.HorizPrice)
		if err != nil {
			return domain.Alert{}, fmt.Errorf("alert %d: parse horiz_price: %w", model.ID, err)
		}
		horiz = &value
	}

	return domain.Alert{
		ID:       model.ID,
		DeviceID: model.DeviceID,
		Destination: domain.Destination{
			BotToken: model.BotToken,
			ChatID:   model.ChatID,
		},
		Exchange:    model.Exchange,
		Symbol:      model.Symbol,
		TargetPrice: target,
		HorizPrice:  horiz,
		Condition:   model.Condition,
		Status:      domain.AlertStatus(model.Status),
		TriggeredAt: model.TriggeredAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

func mapAlertToModel(alert domain.Alert) alertModel {
	var horiz *string
	if alert.HorizPrice != nil {
		value := alert.HorizPrice.String()
		horiz = &value
	}
	condition := alert.Condition
	if condition == "" {
		condition = "cross"
	}
	return alertModel{
		ID:          alert.ID,
		DeviceID:    alert.DeviceID,
		Exchange:    alert.Exchange,
		Symbol:      alert.Symbol,
		BotToken:    alert.Destination.BotToken,
		ChatID:      alert.Destination.ChatID,
		TargetPrice: alert.TargetPrice.String(),
		HorizPrice:  horiz,
		Condition:   condition,
		Status:      string(alert.Status),
		TriggeredAt: alert.TriggeredAt,
	}
}
