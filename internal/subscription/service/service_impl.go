package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/clock"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/subscription/domain"
	"github.com/smallbiznis/renderway/internal/subscription/repository"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      repository.Repository
	Customers customerdomain.Service
	Catalog   catalogdomain.Service
	Provider  paymentdomain.ProviderClient
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      repository.Repository
	customers customerdomain.Service
	catalog   catalogdomain.Service
	provider  paymentdomain.ProviderClient
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		catalog:   p.Catalog,
		provider:  p.Provider,
	}
}

func (s *service) Project(ctx context.Context, providerSubscriptionID string) error {
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return domain.ErrInvalidSubscription
	}

	sub, err := s.provider.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}

	customerID, err := s.resolveCustomer(ctx, sub)
	if err != nil {
		return err
	}
	return s.upsert(ctx, customerID, sub)
}

func (s *service) LinkCheckout(ctx context.Context, customerID snowflake.ID, providerSubscriptionID string) error {
	if customerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return domain.ErrInvalidSubscription
	}

	sub, err := s.provider.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if err := s.customers.LinkProviderCustomer(ctx, customerID, sub.ProviderCustomerID); err != nil {
		return err
	}
	return s.upsert(ctx, customerID, sub)
}

func (s *service) MarkPastDue(ctx context.Context, providerSubscriptionID string) error {
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return domain.ErrInvalidSubscription
	}

	state, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, providerSubscriptionID)
	if err != nil {
		return err
	}
	if state == nil {
		// No projected row yet; build one from provider truth instead.
		return s.Project(ctx, providerSubscriptionID)
	}
	if err := s.repo.UpdateStatus(ctx, s.db, state.CustomerID, domain.StatusPastDue); err != nil {
		return err
	}
	s.log.Info("marked subscription past due",
		zap.String("customer_id", state.CustomerID.String()),
		zap.String("provider_subscription_id", providerSubscriptionID),
	)
	return nil
}

func (s *service) GetState(ctx context.Context, customerID snowflake.ID) (*domain.SubscriptionState, error) {
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	state, err := s.repo.FindByCustomerID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrStateNotFound
	}
	return state, nil
}

// resolveCustomer attributes a provider subscription to a local account.
// The provider customer id lookup wins; subscription metadata is the
// fallback for accounts not linked yet.
func (s *service) resolveCustomer(ctx context.Context, sub *paymentdomain.ProviderSubscription) (snowflake.ID, error) {
	customer, err := s.customers.FindByProviderCustomerID(ctx, sub.ProviderCustomerID)
	if err == nil {
		return customer.ID, nil
	}
	if !errors.Is(err, customerdomain.ErrCustomerNotFound) {
		return 0, err
	}

	if sub.MetadataCustomerID != "" {
		id, perr := strconv.ParseInt(sub.MetadataCustomerID, 10, 64)
		if perr == nil && id != 0 {
			customerID := snowflake.ID(id)
			if _, gerr := s.customers.Get(ctx, customerID); gerr == nil {
				if lerr := s.customers.LinkProviderCustomer(ctx, customerID, sub.ProviderCustomerID); lerr != nil {
					return 0, lerr
				}
				return customerID, nil
			}
		}
	}
	return 0, paymentdomain.ErrMissingCustomerMapping
}

func (s *service) upsert(ctx context.Context, customerID snowflake.ID, sub *paymentdomain.ProviderSubscription) error {
	planID := ""
	if sub.PriceID != "" {
		grant, err := s.catalog.ResolveGrant(ctx, sub.PriceID)
		switch {
		case err == nil && grant.Kind == catalogdomain.GrantKindPlan:
			planID = grant.PlanID
		case errors.Is(err, catalogdomain.ErrPriceNotMapped):
			s.log.Warn("subscription price has no plan mapping",
				zap.String("provider_price_id", sub.PriceID),
				zap.String("provider_subscription_id", sub.ID),
			)
		case err != nil:
			return err
		}
	}

	state := &domain.SubscriptionState{
		CustomerID:             customerID,
		ProviderCustomerID:     sub.ProviderCustomerID,
		ProviderSubscriptionID: sub.ID,
		Status:                 mapStatus(sub.Status),
		PlanID:                 planID,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		UpdatedAt:              s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, state); err != nil {
		return err
	}

	s.log.Info("projected subscription state",
		zap.String("customer_id", customerID.String()),
		zap.String("provider_subscription_id", sub.ID),
		zap.String("status", string(state.Status)),
		zap.String("plan_id", planID),
	)
	return nil
}

// mapStatus normalizes provider status strings. Terminal provider states
// collapse to canceled, delinquent ones to past_due.
func mapStatus(status string) domain.Status {
	switch status {
	case "active":
		return domain.StatusActive
	case "trialing":
		return domain.StatusTrialing
	case "past_due", "unpaid":
		return domain.StatusPastDue
	case "canceled", "incomplete_expired":
		return domain.StatusCanceled
	default:
		return domain.StatusIncomplete
	}
}
