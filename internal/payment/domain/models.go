package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types emitted by payment providers, normalized to a common set.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Checkout session modes.
const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// WebhookEvent is the provider-independent view of a verified webhook
// payload. Adapters fill only the fields their event type carries.
type WebhookEvent struct {
	Provider               string
	ProviderEventID        string
	Type                   string
	CheckoutMode           string
	CheckoutSessionID      string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	InvoiceID              string
	ClientReferenceID      string
	MetadataCustomerID     string
	RawPayload             []byte
}

// PaymentEvent is the audit row for every event a provider delivered.
// The (provider, provider_event_id) tuple is unique so redelivered
// events are detected before any handler runs.
type PaymentEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2" json:"provider_event_id"`
	Type            string         `gorm:"type:text;not null" json:"type"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }

// Adapter verifies and parses a provider's webhook delivery.
type Adapter interface {
	Provider() string
	// SignatureHeader names the request header carrying the delivery
	// signature for this provider.
	SignatureHeader() string
	// Verify checks the delivery signature against the raw body. It must
	// reject before any payload field is trusted.
	Verify(payload []byte, signatureHeader string) error
	// Parse maps the raw payload to a WebhookEvent. Event types outside
	// the handled set return ErrEventIgnored.
	Parse(payload []byte) (*WebhookEvent, error)
}

// ProviderSubscription is the authoritative subscription snapshot
// re-fetched from the provider API, never trusted from webhook bodies.
type ProviderSubscription struct {
	ID                 string
	ProviderCustomerID string
	Status             string
	PriceID            string
	CurrentPeriodEnd   *time.Time
	MetadataCustomerID string
}

// ProviderCheckoutSession is the re-fetched checkout session with its
// purchased line items.
type ProviderCheckoutSession struct {
	ID                 string
	Mode               string
	ProviderCustomerID string
	ClientReferenceID  string
	MetadataCustomerID string
	SubscriptionID     string
	LineItems          []CheckoutLineItem
}

type CheckoutLineItem struct {
	PriceID  string
	Quantity int64
}

// ProviderClient fetches current state from the provider API.
type ProviderClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderCheckoutSession, error)
}

type Service interface {
	// IngestWebhook verifies, parses and processes a raw webhook
	// delivery for the named provider. The signature is read from the
	// header the provider's adapter names.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidProvider        = errors.New("invalid_provider")
	ErrProviderNotFound       = errors.New("provider_not_found")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrInvalidPayload         = errors.New("invalid_payload")
	ErrInvalidEvent           = errors.New("invalid_event")
	ErrEventIgnored           = errors.New("event_ignored")
	ErrEventAlreadyProcessed  = errors.New("event_already_processed")
	ErrMissingCustomerMapping = errors.New("missing_customer_mapping")
)
