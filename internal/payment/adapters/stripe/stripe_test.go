package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/renderway/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"invoice.paid","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	adapter, err := NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if got := adapter.SignatureHeader(); got != "Stripe-Signature" {
		t.Fatalf("unexpected signature header name: %s", got)
	}

	header := buildSignatureHeader(secret, payload, timestamp)
	if err := adapter.Verify(payload, header); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	if err := adapter.Verify(payload, buildSignatureHeader("wrong", payload, timestamp)); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
	if err := adapter.Verify(payload, ""); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
	if err := adapter.Verify([]byte(`{"tampered":true}`), header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for tampered body, got %v", err)
	}
}

func TestVerifyAcceptsAnyV1Signature(t *testing.T) {
	secret := "whsec_rotated"
	payload := []byte(`{"id":"evt_456"}`)
	timestamp := time.Now().Unix()

	adapter, err := NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	// Two v1 entries, the way the provider sends during secret rotation.
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s",
		timestamp,
		signFor("old_secret", payload, timestamp),
		signFor(secret, payload, timestamp),
	)

	if err := adapter.Verify(payload, header); err != nil {
		t.Fatalf("expected one matching v1 signature to verify, got %v", err)
	}
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	adapter, err := NewAdapter("whsec_test")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := mustJSON(t, map[string]any{
		"id":   "evt_cs",
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_123",
				"mode":                "payment",
				"customer":            "cus_123",
				"client_reference_id": "1001",
				"metadata":            map[string]string{"customer_id": "1001"},
			},
		},
	})

	event, err := adapter.Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != domain.EventCheckoutCompleted {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.CheckoutSessionID != "cs_123" || event.CheckoutMode != "payment" {
		t.Fatalf("unexpected session fields: %+v", event)
	}
	if event.ProviderCustomerID != "cus_123" || event.ClientReferenceID != "1001" || event.MetadataCustomerID != "1001" {
		t.Fatalf("unexpected attribution fields: %+v", event)
	}
}

func TestParseSubscriptionEvents(t *testing.T) {
	adapter, err := NewAdapter("whsec_test")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	tests := []struct {
		stripeType string
		wantType   string
	}{
		{"customer.subscription.created", domain.EventSubscriptionCreated},
		{"customer.subscription.updated", domain.EventSubscriptionUpdated},
		{"customer.subscription.deleted", domain.EventSubscriptionDeleted},
	}
	for _, tc := range tests {
		t.Run(tc.stripeType, func(t *testing.T) {
			payload := mustJSON(t, map[string]any{
				"id":   "evt_sub",
				"type": tc.stripeType,
				"data": map[string]any{
					"object": map[string]any{
						"id":       "sub_123",
						"customer": "cus_123",
					},
				},
			})
			event, err := adapter.Parse(payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Type != tc.wantType {
				t.Fatalf("got type %q, want %q", event.Type, tc.wantType)
			}
			if event.ProviderSubscriptionID != "sub_123" {
				t.Fatalf("unexpected subscription id %q", event.ProviderSubscriptionID)
			}
		})
	}
}

func TestParseInvoiceEvents(t *testing.T) {
	adapter, err := NewAdapter("whsec_test")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := mustJSON(t, map[string]any{
		"id":   "evt_in",
		"type": "invoice.paid",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_123",
				"customer":     "cus_123",
				"subscription": "sub_123",
			},
		},
	})
	event, err := adapter.Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != domain.EventInvoicePaid || event.InvoiceID != "in_123" || event.ProviderSubscriptionID != "sub_123" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestParseIgnoresUnhandledTypes(t *testing.T) {
	adapter, err := NewAdapter("whsec_test")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := mustJSON(t, map[string]any{
		"id":   "evt_other",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{"id": "pi_1"}},
	})
	if _, err := adapter.Parse(payload); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}

	if _, err := adapter.Parse([]byte(`not json`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := adapter.Parse([]byte(`{"type":"invoice.paid"}`)); !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event for missing id, got %v", err)
	}
}

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signFor(secret, payload, timestamp))
}

func signFor(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func mustJSON(t *testing.T, value any) []byte {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
