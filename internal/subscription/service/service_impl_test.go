package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/renderway/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/renderway/internal/catalog/service"
	"github.com/smallbiznis/renderway/internal/clock"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	customerrepo "github.com/smallbiznis/renderway/internal/customer/repository"
	customerservice "github.com/smallbiznis/renderway/internal/customer/service"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/subscription/domain"
	"github.com/smallbiznis/renderway/internal/subscription/repository"
)

type fakeProviderClient struct {
	subscriptions map[string]*paymentdomain.ProviderSubscription
}

func (f *fakeProviderClient) GetSubscription(_ context.Context, id string) (*paymentdomain.ProviderSubscription, error) {
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, errors.New("subscription not found")
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProviderClient) GetCheckoutSession(_ context.Context, _ string) (*paymentdomain.ProviderCheckoutSession, error) {
	return nil, errors.New("not implemented")
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	customers customerdomain.Service
	provider  *fakeProviderClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.SubscriptionState{},
		&customerdomain.Customer{},
		&catalogdomain.Plan{},
		&catalogdomain.TopupPack{},
	))
	t.Cleanup(func() {
		for _, table := range []string{"subscription_states", "customers", "plans", "topup_packs"} {
			require.NoError(t, db.Exec("DELETE FROM "+table).Error)
		}
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewSystemClock()

	customers := customerservice.NewService(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  customerrepo.Provide(),
	})
	catalog := catalogservice.NewService(catalogservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: catalogrepo.Provide(),
	})
	provider := &fakeProviderClient{subscriptions: map[string]*paymentdomain.ProviderSubscription{}}

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		Repo:      repository.Provide(),
		Customers: customers,
		Catalog:   catalog,
		Provider:  provider,
	})
	return &fixture{db: db, svc: svc, customers: customers, provider: provider}
}

func (f *fixture) seedPlan(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.Create(&catalogdomain.Plan{
		PlanID:          "studio_monthly",
		ProviderPriceID: "price_studio_m",
		MonthlyTokens:   500,
	}).Error)
}

func (f *fixture) seedCustomer(t *testing.T, providerCustomerID string) *customerdomain.Customer {
	t.Helper()
	customer, err := f.customers.Create(context.Background(), customerdomain.CreateRequest{
		Name:  "Test Customer",
		Email: "customer@example.com",
	})
	require.NoError(t, err)
	if providerCustomerID != "" {
		require.NoError(t, f.customers.LinkProviderCustomer(context.Background(), customer.ID, providerCustomerID))
	}
	return customer
}

func TestProjectUpsertsFromProviderTruth(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t)
	customer := f.seedCustomer(t, "cus_123")
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	f.provider.subscriptions["sub_1"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_1",
		ProviderCustomerID: "cus_123",
		Status:             "active",
		PriceID:            "price_studio_m",
		CurrentPeriodEnd:   &periodEnd,
	}

	require.NoError(t, f.svc.Project(context.Background(), "sub_1"))

	state, err := f.svc.GetState(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, state.Status)
	assert.Equal(t, "studio_monthly", state.PlanID)
	assert.Equal(t, "sub_1", state.ProviderSubscriptionID)
	require.NotNil(t, state.CurrentPeriodEnd)
	assert.True(t, state.CurrentPeriodEnd.Equal(periodEnd))
}

func TestProjectConvergesOutOfOrderEvents(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t)
	customer := f.seedCustomer(t, "cus_456")
	f.provider.subscriptions["sub_2"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_2",
		ProviderCustomerID: "cus_456",
		Status:             "canceled",
		PriceID:            "price_studio_m",
	}

	// A stale "created" event and a fresh "deleted" event both project
	// the same provider truth, so the final state is the same either way.
	require.NoError(t, f.svc.Project(context.Background(), "sub_2"))
	require.NoError(t, f.svc.Project(context.Background(), "sub_2"))

	state, err := f.svc.GetState(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, state.Status)
}

func TestProjectResolvesCustomerFromMetadata(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t)
	customer := f.seedCustomer(t, "")
	f.provider.subscriptions["sub_3"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_3",
		ProviderCustomerID: "cus_789",
		Status:             "trialing",
		PriceID:            "price_studio_m",
		MetadataCustomerID: customer.ID.String(),
	}

	require.NoError(t, f.svc.Project(context.Background(), "sub_3"))

	state, err := f.svc.GetState(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrialing, state.Status)

	// The metadata fallback also links the provider customer id.
	linked, err := f.customers.FindByProviderCustomerID(context.Background(), "cus_789")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, linked.ID)
}

func TestProjectUnattributableSubscription(t *testing.T) {
	f := newFixture(t)
	f.provider.subscriptions["sub_4"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_4",
		ProviderCustomerID: "cus_unknown",
		Status:             "active",
	}

	err := f.svc.Project(context.Background(), "sub_4")
	assert.True(t, errors.Is(err, paymentdomain.ErrMissingCustomerMapping))
}

func TestLinkCheckoutAttributesAndLinks(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t)
	customer := f.seedCustomer(t, "")
	f.provider.subscriptions["sub_5"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_5",
		ProviderCustomerID: "cus_link",
		Status:             "active",
		PriceID:            "price_studio_m",
	}

	require.NoError(t, f.svc.LinkCheckout(context.Background(), customer.ID, "sub_5"))

	state, err := f.svc.GetState(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, state.Status)

	linked, err := f.customers.FindByProviderCustomerID(context.Background(), "cus_link")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, linked.ID)
}

func TestMarkPastDue(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t)
	customer := f.seedCustomer(t, "cus_pd")
	f.provider.subscriptions["sub_6"] = &paymentdomain.ProviderSubscription{
		ID:                 "sub_6",
		ProviderCustomerID: "cus_pd",
		Status:             "active",
		PriceID:            "price_studio_m",
	}
	require.NoError(t, f.svc.Project(context.Background(), "sub_6"))

	require.NoError(t, f.svc.MarkPastDue(context.Background(), "sub_6"))

	state, err := f.svc.GetState(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, state.Status)
	// The plan survives; past_due does not erase attribution.
	assert.Equal(t, "studio_monthly", state.PlanID)
}

func TestGetStateNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetState(context.Background(), snowflake.ID(424242))
	assert.True(t, errors.Is(err, domain.ErrStateNotFound))
}
