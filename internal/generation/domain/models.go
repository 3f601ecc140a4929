package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Fidelity selects the render quality tier.
type Fidelity string

const (
	FidelityStandard     Fidelity = "standard"
	FidelityHighFidelity Fidelity = "high_fidelity"
)

// CostFor returns the token cost of a render, or 0 for an unknown tier.
func CostFor(fidelity Fidelity) int64 {
	switch fidelity {
	case FidelityStandard:
		return 1
	case FidelityHighFidelity:
		return 2
	default:
		return 0
	}
}

// Request describes a staging render. JobID is optional; the service
// assigns one when absent, and clients that retry pass the same id to
// avoid paying twice.
type Request struct {
	CustomerID snowflake.ID `json:"customer_id"`
	RoomType   string       `json:"room_type"`
	Style      string       `json:"style"`
	Fidelity   Fidelity     `json:"fidelity"`
	ImageURL   string       `json:"image_url"`
	JobID      string       `json:"job_id,omitempty"`
}

type Result struct {
	JobID     string `json:"job_id"`
	ResultURL string `json:"result_url"`
	Balance   int64  `json:"balance"`
}

// RenderJob is what the rendering backend receives.
type RenderJob struct {
	JobID    string
	RoomType string
	Style    string
	Fidelity Fidelity
	ImageURL string
}

// Backend renders staged images. Implementations must treat the same
// JobID as the same job.
type Backend interface {
	Render(ctx context.Context, job RenderJob) (resultURL string, err error)
}

type Service interface {
	// Generate reserves tokens, renders, and refunds the reservation
	// when the render fails.
	Generate(ctx context.Context, req Request) (Result, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidFidelity = errors.New("invalid_fidelity")
	ErrInvalidImageURL = errors.New("invalid_image_url")
	ErrBackendFailure  = errors.New("backend_failure")
)
