package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/renderway/internal/payment/domain"
)

type Adapter struct {
	webhookSecret string
}

func NewAdapter(webhookSecret string) (*Adapter, error) {
	webhookSecret = strings.TrimSpace(webhookSecret)
	if webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &Adapter{webhookSecret: webhookSecret}, nil
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) SignatureHeader() string {
	return "Stripe-Signature"
}

// Verify checks the Stripe-Signature header against the raw body. The
// header carries a timestamp and one or more v1 HMAC-SHA256 signatures
// over "<timestamp>.<payload>".
func (a *Adapter) Verify(payload []byte, signatureHeader string) error {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(payload []byte) (*domain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	case "customer.subscription.created":
		return a.parseSubscription(event, payload, domain.EventSubscriptionCreated)
	case "customer.subscription.updated":
		return a.parseSubscription(event, payload, domain.EventSubscriptionUpdated)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, domain.EventSubscriptionDeleted)
	case "invoice.paid":
		return a.parseInvoice(event, payload, domain.EventInvoicePaid)
	case "invoice.payment_failed":
		return a.parseInvoice(event, payload, domain.EventInvoicePaymentFailed)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*domain.WebhookEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.WebhookEvent{
		Provider:               a.Provider(),
		ProviderEventID:        event.ID,
		Type:                   domain.EventCheckoutCompleted,
		CheckoutMode:           strings.TrimSpace(session.Mode),
		CheckoutSessionID:      session.ID,
		ProviderCustomerID:     strings.TrimSpace(session.Customer),
		ProviderSubscriptionID: strings.TrimSpace(session.Subscription),
		ClientReferenceID:      strings.TrimSpace(session.ClientReferenceID),
		MetadataCustomerID:     strings.TrimSpace(session.Metadata["customer_id"]),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, eventType string) (*domain.WebhookEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.WebhookEvent{
		Provider:               a.Provider(),
		ProviderEventID:        event.ID,
		Type:                   eventType,
		ProviderCustomerID:     strings.TrimSpace(sub.Customer),
		ProviderSubscriptionID: sub.ID,
		MetadataCustomerID:     strings.TrimSpace(sub.Metadata["customer_id"]),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, payload []byte, eventType string) (*domain.WebhookEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.WebhookEvent{
		Provider:               a.Provider(),
		ProviderEventID:        event.ID,
		Type:                   eventType,
		ProviderCustomerID:     strings.TrimSpace(invoice.Customer),
		ProviderSubscriptionID: strings.TrimSpace(invoice.Subscription),
		InvoiceID:              invoice.ID,
		RawPayload:             payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
