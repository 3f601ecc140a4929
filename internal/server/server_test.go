package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/smallbiznis/renderway/internal/cache"
	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/renderway/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/renderway/internal/catalog/service"
	"github.com/smallbiznis/renderway/internal/clock"
	"github.com/smallbiznis/renderway/internal/config"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	customerrepo "github.com/smallbiznis/renderway/internal/customer/repository"
	customerservice "github.com/smallbiznis/renderway/internal/customer/service"
	generationdomain "github.com/smallbiznis/renderway/internal/generation/domain"
	generationservice "github.com/smallbiznis/renderway/internal/generation/service"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/renderway/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/renderway/internal/ledger/service"
	"github.com/smallbiznis/renderway/internal/observability"
	"github.com/smallbiznis/renderway/internal/payment/adapters"
	"github.com/smallbiznis/renderway/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/renderway/internal/payment/repository"
	paymentservice "github.com/smallbiznis/renderway/internal/payment/service"
	spendservice "github.com/smallbiznis/renderway/internal/spend/service"
	subscriptiondomain "github.com/smallbiznis/renderway/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/renderway/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/renderway/internal/subscription/service"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

type fakeProviderClient struct {
	subscriptions map[string]*paymentdomain.ProviderSubscription
	sessions      map[string]*paymentdomain.ProviderCheckoutSession
}

func (f *fakeProviderClient) GetSubscription(_ context.Context, id string) (*paymentdomain.ProviderSubscription, error) {
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, errors.New("subscription not found")
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProviderClient) GetCheckoutSession(_ context.Context, id string) (*paymentdomain.ProviderCheckoutSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	cp := *session
	return &cp, nil
}

type fakeBackend struct {
	fail bool
}

func (f *fakeBackend) Render(_ context.Context, job generationdomain.RenderJob) (string, error) {
	if f.fail {
		return "", errors.New("render failed")
	}
	return "https://cdn.renderway.dev/results/" + job.JobID + ".jpg", nil
}

type fixture struct {
	engine   *gin.Engine
	db       *gorm.DB
	customer *customerdomain.Customer
	provider *fakeProviderClient
	backend  *fakeBackend
	ledger   ledgerdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&catalogdomain.Plan{},
		&catalogdomain.TopupPack{},
		&ledgerdomain.LedgerEntry{},
		&paymentdomain.PaymentEvent{},
		&subscriptiondomain.SubscriptionState{},
	))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_dedupe ON ledger_entries (customer_id, kind, external_id)",
	).Error)
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_events_provider_event ON payment_events (provider, provider_event_id)",
	).Error)
	t.Cleanup(func() {
		for _, table := range []string{
			"payment_events", "ledger_entries", "customers",
			"plans", "topup_packs", "subscription_states",
		} {
			require.NoError(t, db.Exec("DELETE FROM "+table).Error)
		}
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewSystemClock()
	log := zap.NewNop()

	customers := customerservice.NewService(customerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: customerrepo.Provide(),
	})
	catalog := catalogservice.NewService(catalogservice.Params{
		DB: db, Log: log, Repo: catalogrepo.Provide(),
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
	})
	provider := &fakeProviderClient{
		subscriptions: map[string]*paymentdomain.ProviderSubscription{},
		sessions:      map[string]*paymentdomain.ProviderCheckoutSession{},
	}
	subs := subscriptionservice.NewService(subscriptionservice.Params{
		DB: db, Log: log, Clock: clk,
		Repo:      subscriptionrepo.Provide(),
		Customers: customers,
		Catalog:   catalog,
		Provider:  provider,
	})
	stripeAdapter, err := stripe.NewAdapter(testWebhookSecret)
	require.NoError(t, err)
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Registry:      adapters.NewRegistry(stripeAdapter),
		Repo:          paymentrepo.Provide(),
		Provider:      provider,
		Catalog:       catalog,
		Customers:     customers,
		Ledger:        ledger,
		Subscriptions: subs,
	})
	spend := spendservice.NewService(spendservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		LedgerRepo: ledgerrepo.Provide(),
	})
	backend := &fakeBackend{}
	generations := generationservice.NewService(generationservice.Params{
		Log:     log,
		Spend:   spend,
		Backend: backend,
	})

	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{HTTPAddr: ":0"},
		DB:              db,
		GenID:           node,
		CustomerSvc:     customers,
		CatalogSvc:      catalog,
		LedgerSvc:       ledger,
		SubscriptionSvc: subs,
		PaymentSvc:      payments,
		SpendSvc:        spend,
		GenerationSvc:   generations,
		BalanceCache:    cache.NewBalanceCache(),
	})

	customer, err := customers.Create(context.Background(), customerdomain.CreateRequest{
		Name:  "Test Studio",
		Email: "studio@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, customers.LinkProviderCustomer(context.Background(), customer.ID, "cus_test"))
	require.NoError(t, db.Create(&catalogdomain.Plan{
		PlanID:          "studio_monthly",
		ProviderPriceID: "price_studio_m",
		MonthlyTokens:   500,
	}).Error)

	return &fixture{
		engine:   engine,
		db:       db,
		customer: customer,
		provider: provider,
		backend:  backend,
		ledger:   ledger,
	}
}

func (f *fixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postWebhook(event map[string]any, secret string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(event)
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, string(payload))))
	signature := fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) grantTokens(t *testing.T, tokens int64) {
	t.Helper()
	applied, err := f.ledger.Append(context.Background(), ledgerdomain.AppendRequest{
		CustomerID: f.customer.ID,
		Delta:      tokens,
		Kind:       ledgerdomain.KindTopup,
		ExternalID: fmt.Sprintf("seed_%d", tokens),
		Reason:     "test grant",
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func TestWebhookInvoicePaidFlow(t *testing.T) {
	f := newFixture(t)
	f.provider.subscriptions["sub_1"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_1",
		ProviderCustomerID: "cus_test",
		Status:             "active",
		PriceID:            "price_studio_m",
	}

	rec := f.postWebhook(map[string]any{
		"id":   "evt_1",
		"type": "invoice.paid",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_1",
				"customer":     "cus_test",
				"subscription": "sub_1",
			},
		},
	}, testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/customers/"+f.customer.ID.String()+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balanceResp struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balanceResp))
	assert.Equal(t, int64(500), balanceResp.Balance)

	rec = f.do(http.MethodGet, "/api/customers/"+f.customer.ID.String()+"/subscription", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state subscriptiondomain.SubscriptionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, subscriptiondomain.StatusActive, state.Status)
}

func TestWebhookBadSignatureIs400(t *testing.T) {
	f := newFixture(t)

	rec := f.postWebhook(map[string]any{
		"id":   "evt_bad",
		"type": "invoice.paid",
		"data": map[string]any{"object": map[string]any{"id": "in_x"}},
	}, "wrong_secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownProviderIs404(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/webhooks/braintree", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookIgnoredEventIs200(t *testing.T) {
	f := newFixture(t)

	rec := f.postWebhook(map[string]any{
		"id":   "evt_pi",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{"id": "pi_1"}},
	}, testWebhookSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateGeneration(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, 5)

	rec := f.do(http.MethodPost, "/api/generations", map[string]any{
		"customer_id": f.customer.ID.String(),
		"room_type":   "living_room",
		"style":       "scandinavian",
		"fidelity":    "high_fidelity",
		"image_url":   "https://example.com/room.jpg",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result generationdomain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, int64(3), result.Balance)
}

func TestCreateGenerationInsufficientBalanceIs402(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, 1)

	rec := f.do(http.MethodPost, "/api/generations", map[string]any{
		"customer_id": f.customer.ID.String(),
		"fidelity":    "high_fidelity",
		"image_url":   "https://example.com/room.jpg",
	}, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp struct {
		Error struct {
			Type    string `json:"type"`
			Balance int64  `json:"balance"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_balance", resp.Error.Type)
	assert.Equal(t, int64(1), resp.Error.Balance)
}

func TestCreateGenerationBackendFailureIs502(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, 5)
	f.backend.fail = true

	rec := f.do(http.MethodPost, "/api/generations", map[string]any{
		"customer_id": f.customer.ID.String(),
		"fidelity":    "standard",
		"image_url":   "https://example.com/room.jpg",
	}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Reservation was refunded.
	balance, err := f.ledger.BalanceOf(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestListLedgerEntries(t *testing.T) {
	f := newFixture(t)
	f.grantTokens(t, 5)

	rec := f.do(http.MethodGet, "/api/customers/"+f.customer.ID.String()+"/entries", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []ledgerdomain.LedgerEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, ledgerdomain.KindTopup, resp.Entries[0].Kind)
}

func TestGetSubscriptionNotFoundIs404(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/customers/"+f.customer.ID.String()+"/subscription", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCustomer(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/customers", map[string]any{
		"name":  "New Studio",
		"email": "new@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate email conflicts.
	rec = f.do(http.MethodPost, "/api/customers", map[string]any{
		"name":  "New Studio",
		"email": "new@example.com",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
