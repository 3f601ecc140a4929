package domain

import (
	"context"
	"errors"
	"time"
)

// Plan maps a provider price to a monthly token grant.
type Plan struct {
	PlanID          string    `gorm:"primaryKey;type:text" json:"plan_id"`
	ProviderPriceID string    `gorm:"type:text;not null;uniqueIndex:ux_plans_provider_price" json:"provider_price_id"`
	MonthlyTokens   int64     `gorm:"not null" json:"monthly_tokens"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// TopupPack maps a provider price to a one-time token grant.
type TopupPack struct {
	ProviderPriceID string    `gorm:"primaryKey;type:text" json:"provider_price_id"`
	Tokens          int64     `gorm:"not null" json:"tokens"`
	Active          bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TopupPack) TableName() string { return "topup_packs" }

// GrantKind distinguishes recurring plan grants from one-time top-ups.
type GrantKind string

const (
	GrantKindPlan  GrantKind = "plan"
	GrantKindTopup GrantKind = "topup"
)

// Grant is the resolved token grant for a provider price.
type Grant struct {
	Kind   GrantKind
	PlanID string // set only for plan grants
	Tokens int64
}

type Service interface {
	// ResolveGrant maps a provider price id to a token grant. An
	// unmapped price returns ErrPriceNotMapped; callers must treat that
	// as a logged no-op and never substitute a default amount.
	ResolveGrant(ctx context.Context, providerPriceID string) (Grant, error)
	ListPlans(ctx context.Context) ([]Plan, error)
	ListTopupPacks(ctx context.Context) ([]TopupPack, error)
}

var (
	ErrInvalidPriceID = errors.New("invalid_price_id")
	ErrPriceNotMapped = errors.New("price_not_mapped")
)
