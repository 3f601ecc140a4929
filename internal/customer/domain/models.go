package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is an account that owns a token balance. ProviderCustomerID
// links the account to its payment-provider record once a checkout or
// subscription event attributes one.
type Customer struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Name               string       `gorm:"type:text;not null" json:"name"`
	Email              string       `gorm:"type:text;not null;uniqueIndex:ux_customers_email" json:"email"`
	ProviderCustomerID string       `gorm:"type:text;index:ix_customers_provider_customer" json:"provider_customer_id"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

type CreateRequest struct {
	Name  string
	Email string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Customer, error)
	Get(ctx context.Context, id snowflake.ID) (*Customer, error)
	// FindByProviderCustomerID resolves a payment-provider customer id to
	// the local account, or ErrCustomerNotFound when no account carries it.
	FindByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Customer, error)
	// LinkProviderCustomer records the provider customer id on the
	// account. Linking the same id again is a no-op.
	LinkProviderCustomer(ctx context.Context, id snowflake.ID, providerCustomerID string) error
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrEmailTaken       = errors.New("email_taken")
)
