package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/payment/domain"
)

type Repository interface {
	// Insert records the delivered event, returning false when the
	// (provider, provider_event_id) tuple was recorded before.
	Insert(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) (bool, error)
	Find(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.PaymentEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error
}

type repo struct{}

func Provide() Repository { return &repo{} }

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(`
		INSERT INTO payment_events (id, provider, provider_event_id, type, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, event.ID, event.Provider, event.ProviderEventID, event.Type, event.Payload, event.ReceivedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.PaymentEvent, error) {
	var event domain.PaymentEvent
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.PaymentEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Update("processed_at", processedAt).Error
}
