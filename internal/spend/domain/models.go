package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// SpendResult reports the outcome of a reservation or refund. Balance is
// the customer's balance after the operation.
type SpendResult struct {
	Applied bool  `json:"applied"`
	Balance int64 `json:"balance"`
}

type Service interface {
	// TrySpend atomically reserves cost tokens for the job. A balance
	// below cost reserves nothing and returns ErrInsufficientBalance.
	// Retrying a job that already spent reports Applied without
	// deducting again; a job that was spent and refunded is terminal
	// and returns ErrSpendRefunded.
	TrySpend(ctx context.Context, customerID snowflake.ID, cost int64, jobID string) (SpendResult, error)
	// Refund returns the tokens the job reserved. Refunding twice is a
	// no-op; refunding a job that never spent is ErrSpendNotFound.
	Refund(ctx context.Context, customerID snowflake.ID, jobID string) (SpendResult, error)
}

var (
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidCost         = errors.New("invalid_cost")
	ErrInvalidJobID        = errors.New("invalid_job_id")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrSpendNotFound       = errors.New("spend_not_found")
	ErrSpendRefunded       = errors.New("spend_refunded")
)
