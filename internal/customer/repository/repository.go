package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/customer/domain"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*domain.Customer, error)
	SetProviderCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, providerCustomerID string) error
}

type repo struct{}

func Provide() Repository { return &repo{} }

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		Where("provider_customer_id = ?", providerCustomerID).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) SetProviderCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, providerCustomerID string) error {
	return db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("id = ?", id).
		Update("provider_customer_id", providerCustomerID).Error
}
