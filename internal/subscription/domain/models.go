package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the normalized subscription lifecycle state.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
)

// ValidStatus reports whether s is one of the defined states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusIncomplete, StatusActive, StatusTrialing, StatusPastDue, StatusCanceled:
		return true
	default:
		return false
	}
}

// SubscriptionState is the single projected row per customer. It is a
// cache of provider truth: every write replaces the whole row with
// freshly re-fetched state, so replay order cannot corrupt it.
type SubscriptionState struct {
	CustomerID             snowflake.ID `gorm:"primaryKey" json:"customer_id"`
	ProviderCustomerID     string       `gorm:"type:text;not null" json:"provider_customer_id"`
	ProviderSubscriptionID string       `gorm:"type:text;not null;index:ix_subscription_states_provider_sub" json:"provider_subscription_id"`
	Status                 Status       `gorm:"type:text;not null" json:"status"`
	PlanID                 string       `gorm:"type:text" json:"plan_id"`
	CurrentPeriodEnd       *time.Time   `json:"current_period_end,omitempty"`
	UpdatedAt              time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (SubscriptionState) TableName() string { return "subscription_states" }

type Service interface {
	// Project re-fetches the subscription from the provider and replaces
	// the customer's projected row with the result. It is safe to call
	// for create, update and delete events in any order.
	Project(ctx context.Context, providerSubscriptionID string) error
	// LinkCheckout projects the subscription a completed subscription
	// checkout created, attributing it to the given customer.
	LinkCheckout(ctx context.Context, customerID snowflake.ID, providerSubscriptionID string) error
	// MarkPastDue flags the customer's subscription after a failed
	// invoice payment without touching the ledger.
	MarkPastDue(ctx context.Context, providerSubscriptionID string) error
	GetState(ctx context.Context, customerID snowflake.ID) (*SubscriptionState, error)
}

var (
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrStateNotFound       = errors.New("subscription_state_not_found")
)
