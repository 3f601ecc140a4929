package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/renderway/internal/subscription/domain"
)

type Repository interface {
	// Upsert replaces the customer's row with the given state.
	Upsert(ctx context.Context, db *gorm.DB, state *domain.SubscriptionState) error
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.SubscriptionState, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.SubscriptionState, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status domain.Status) error
}

type repo struct{}

func Provide() Repository { return &repo{} }

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, state *domain.SubscriptionState) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id",
			"provider_subscription_id",
			"status",
			"plan_id",
			"current_period_end",
			"updated_at",
		}),
	}).Create(state).Error
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.SubscriptionState, error) {
	var state domain.SubscriptionState
	err := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.SubscriptionState, error) {
	var state domain.SubscriptionState
	err := db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status domain.Status) error {
	return db.WithContext(ctx).
		Model(&domain.SubscriptionState{}).
		Where("customer_id = ?", customerID).
		Update("status", status).Error
}
