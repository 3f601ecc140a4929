package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind classifies a balance-affecting ledger entry.
type Kind string

const (
	KindMonthlyGrant Kind = "monthly_grant" // subscription renewal grant
	KindTopup        Kind = "topup"         // one-time token purchase
	KindSpend        Kind = "spend"         // generation reservation
	KindRefund       Kind = "refund"        // compensation for a failed generation
)

// ValidKind reports whether k is one of the defined entry kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindMonthlyGrant, KindTopup, KindSpend, KindRefund:
		return true
	default:
		return false
	}
}

// LedgerEntry is an immutable balance-affecting fact. Entries are never
// updated or deleted; a customer's balance is the sum of their deltas.
// The (customer_id, kind, external_id) tuple is unique, which makes
// re-applying the same provider event or generation job a no-op.
type LedgerEntry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_ledger_entries_dedupe,priority:1" json:"customer_id"`
	Delta      int64        `gorm:"not null" json:"delta"`
	Kind       Kind         `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_dedupe,priority:2" json:"kind"`
	ExternalID string       `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_dedupe,priority:3" json:"external_id"`
	Reason     string       `gorm:"type:text;not null" json:"reason"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// AppendRequest describes a candidate ledger entry.
type AppendRequest struct {
	CustomerID snowflake.ID
	Delta      int64
	Kind       Kind
	ExternalID string
	Reason     string
}

// Repository persists ledger entries. Methods take the database handle so
// callers can run them inside their own transactions.
type Repository interface {
	// Append inserts the entry, returning false when the dedupe tuple
	// already exists. The insert never modifies existing rows.
	Append(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	// SumBalance returns the sum of all deltas for the customer.
	SumBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (int64, error)
	// FindByDedupe returns the entry for the idempotency tuple, or nil.
	FindByDedupe(ctx context.Context, db *gorm.DB, customerID snowflake.ID, kind Kind, externalID string) (*LedgerEntry, error)
	// List returns the customer's entries, newest first.
	List(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]LedgerEntry, error)
}

type Service interface {
	// Append records a balance-affecting fact. applied=false means the
	// same fact was recorded before; that is the defined no-op, not an
	// error.
	Append(ctx context.Context, req AppendRequest) (applied bool, err error)
	BalanceOf(ctx context.Context, customerID snowflake.ID) (int64, error)
	ListEntries(ctx context.Context, customerID snowflake.ID, limit int) ([]LedgerEntry, error)
}

var (
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrInvalidDelta      = errors.New("invalid_delta")
)
