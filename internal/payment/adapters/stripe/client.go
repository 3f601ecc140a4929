package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/renderway/internal/payment/domain"
)

const defaultAPIBaseURL = "https://api.stripe.com"

// Client re-fetches subscriptions and checkout sessions from the Stripe
// API. Webhook payloads only carry object ids; the fetched state is the
// source of truth.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

type apiSubscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type apiCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         struct {
		Data []struct {
			Quantity int64 `json:"quantity"`
			Price    struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*domain.ProviderSubscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, domain.ErrInvalidEvent
	}

	var sub apiSubscription
	if err := c.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, err
	}

	priceID := ""
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
	}
	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	return &domain.ProviderSubscription{
		ID:                 sub.ID,
		ProviderCustomerID: strings.TrimSpace(sub.Customer),
		Status:             strings.TrimSpace(sub.Status),
		PriceID:            priceID,
		CurrentPeriodEnd:   periodEnd,
		MetadataCustomerID: strings.TrimSpace(sub.Metadata["customer_id"]),
	}, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.ProviderCheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidEvent
	}

	query := url.Values{}
	query.Set("expand[]", "line_items")

	var session apiCheckoutSession
	if err := c.doGet(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID), query, &session); err != nil {
		return nil, err
	}

	items := make([]domain.CheckoutLineItem, 0, len(session.LineItems.Data))
	for _, item := range session.LineItems.Data {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		items = append(items, domain.CheckoutLineItem{
			PriceID:  item.Price.ID,
			Quantity: quantity,
		})
	}

	return &domain.ProviderCheckoutSession{
		ID:                 session.ID,
		Mode:               strings.TrimSpace(session.Mode),
		ProviderCustomerID: strings.TrimSpace(session.Customer),
		ClientReferenceID:  strings.TrimSpace(session.ClientReferenceID),
		MetadataCustomerID: strings.TrimSpace(session.Metadata["customer_id"]),
		SubscriptionID:     strings.TrimSpace(session.Subscription),
		LineItems:          items,
	}, nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out any) error {
	if c.apiKey == "" {
		return errors.New("stripe api key is required")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe api %s: %s", resp.Status, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe api %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
