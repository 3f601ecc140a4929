package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/catalog/domain"
)

type Repository interface {
	FindPlanByPriceID(ctx context.Context, db *gorm.DB, providerPriceID string) (*domain.Plan, error)
	FindTopupByPriceID(ctx context.Context, db *gorm.DB, providerPriceID string) (*domain.TopupPack, error)
	ListPlans(ctx context.Context, db *gorm.DB) ([]domain.Plan, error)
	ListTopupPacks(ctx context.Context, db *gorm.DB) ([]domain.TopupPack, error)
}

type repo struct{}

func Provide() Repository { return &repo{} }

func (r *repo) FindPlanByPriceID(ctx context.Context, db *gorm.DB, providerPriceID string) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).
		Where("provider_price_id = ?", providerPriceID).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindTopupByPriceID(ctx context.Context, db *gorm.DB, providerPriceID string) (*domain.TopupPack, error) {
	var pack domain.TopupPack
	err := db.WithContext(ctx).
		Where("provider_price_id = ? AND active = ?", providerPriceID, true).
		First(&pack).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var plans []domain.Plan
	if err := db.WithContext(ctx).Order("plan_id ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) ListTopupPacks(ctx context.Context, db *gorm.DB) ([]domain.TopupPack, error) {
	var packs []domain.TopupPack
	if err := db.WithContext(ctx).Order("provider_price_id ASC").Find(&packs).Error; err != nil {
		return nil, err
	}
	return packs, nil
}
