package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/clock"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/renderway/internal/observability/metrics"
	"github.com/smallbiznis/renderway/internal/payment/adapters"
	"github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/payment/repository"
	subscriptiondomain "github.com/smallbiznis/renderway/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Registry      *adapters.Registry
	Repo          repository.Repository
	Provider      domain.ProviderClient
	Catalog       catalogdomain.Service
	Customers     customerdomain.Service
	Ledger        ledgerdomain.Service
	Subscriptions subscriptiondomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	registry      *adapters.Registry
	repo          repository.Repository
	provider      domain.ProviderClient
	catalog       catalogdomain.Service
	customers     customerdomain.Service
	ledger        ledgerdomain.Service
	subscriptions subscriptiondomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		registry:      p.Registry,
		repo:          p.Repo,
		provider:      p.Provider,
		catalog:       p.Catalog,
		customers:     p.Customers,
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return err
	}
	if err := adapter.Verify(payload, headers.Get(adapter.SignatureHeader())); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			s.log.Debug("ignored webhook event type", zap.String("provider", provider))
		}
		return err
	}

	inserted, err := s.repo.Insert(ctx, s.db, &domain.PaymentEvent{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Type:            event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		existing, ferr := s.repo.Find(ctx, s.db, event.Provider, event.ProviderEventID)
		if ferr != nil {
			return ferr
		}
		if existing != nil && existing.ProcessedAt != nil {
			s.log.Info("webhook event already processed",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return domain.ErrEventAlreadyProcessed
		}
		// Redelivery of an event whose first processing attempt failed;
		// fall through and process it again.
	}

	if err := s.processEvent(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, s.clock.Now()); err != nil {
		return err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

// processEvent routes a verified event to its handler. Errors that only
// reprocessing cannot fix, like a price with no catalog mapping or a
// customer the event cannot be attributed to, are logged and swallowed
// so the provider stops redelivering.
func (s *service) processEvent(ctx context.Context, event *domain.WebhookEvent) error {
	var err error
	switch event.Type {
	case domain.EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, event)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		err = s.handleSubscriptionChanged(ctx, event)
	case domain.EventInvoicePaid:
		err = s.handleInvoicePaid(ctx, event)
	case domain.EventInvoicePaymentFailed:
		err = s.handleInvoicePaymentFailed(ctx, event)
	default:
		s.log.Debug("no handler for event type", zap.String("type", event.Type))
		return nil
	}

	if errors.Is(err, domain.ErrMissingCustomerMapping) {
		s.log.Warn("webhook event not attributable to a customer",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("type", event.Type),
			zap.String("provider_customer_id", event.ProviderCustomerID),
		)
		return nil
	}
	if errors.Is(err, catalogdomain.ErrPriceNotMapped) {
		s.log.Warn("webhook event references an unmapped price",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("type", event.Type),
		)
		return nil
	}
	return err
}

func (s *service) handleCheckoutCompleted(ctx context.Context, event *domain.WebhookEvent) error {
	session, err := s.provider.GetCheckoutSession(ctx, event.CheckoutSessionID)
	if err != nil {
		return err
	}

	customerID, err := s.resolveCustomer(ctx, session.ProviderCustomerID, session.ClientReferenceID, session.MetadataCustomerID)
	if err != nil {
		return err
	}

	switch session.Mode {
	case domain.CheckoutModeSubscription:
		return s.subscriptions.LinkCheckout(ctx, customerID, session.SubscriptionID)
	case domain.CheckoutModePayment:
		return s.grantTopups(ctx, customerID, session)
	default:
		s.log.Warn("checkout session has unhandled mode",
			zap.String("checkout_session_id", session.ID),
			zap.String("mode", session.Mode),
		)
		return nil
	}
}

// grantTopups appends one topup entry per purchased pack. The checkout
// session id keys the dedupe tuple, so a redelivered event cannot grant
// tokens twice.
func (s *service) grantTopups(ctx context.Context, customerID snowflake.ID, session *domain.ProviderCheckoutSession) error {
	for _, item := range session.LineItems {
		grant, err := s.catalog.ResolveGrant(ctx, item.PriceID)
		if err != nil {
			return err
		}
		if grant.Kind != catalogdomain.GrantKindTopup {
			s.log.Warn("payment-mode checkout bought a non-topup price",
				zap.String("checkout_session_id", session.ID),
				zap.String("provider_price_id", item.PriceID),
			)
			continue
		}

		externalID := session.ID
		if len(session.LineItems) > 1 {
			externalID = fmt.Sprintf("%s:%s", session.ID, item.PriceID)
		}
		_, err = s.ledger.Append(ctx, ledgerdomain.AppendRequest{
			CustomerID: customerID,
			Delta:      grant.Tokens * item.Quantity,
			Kind:       ledgerdomain.KindTopup,
			ExternalID: externalID,
			Reason:     fmt.Sprintf("topup purchase %s", item.PriceID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) handleSubscriptionChanged(ctx context.Context, event *domain.WebhookEvent) error {
	return s.subscriptions.Project(ctx, event.ProviderSubscriptionID)
}

// handleInvoicePaid credits the monthly grant keyed by invoice id and
// refreshes the projected subscription state.
func (s *service) handleInvoicePaid(ctx context.Context, event *domain.WebhookEvent) error {
	if event.ProviderSubscriptionID == "" {
		// One-off invoices carry no subscription and grant nothing.
		s.log.Debug("invoice without subscription", zap.String("invoice_id", event.InvoiceID))
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, event.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	customerID, err := s.resolveCustomer(ctx, sub.ProviderCustomerID, "", sub.MetadataCustomerID)
	if err != nil {
		return err
	}

	grant, err := s.catalog.ResolveGrant(ctx, sub.PriceID)
	if err != nil {
		return err
	}
	if grant.Kind != catalogdomain.GrantKindPlan {
		s.log.Warn("subscription invoice resolved to a non-plan price",
			zap.String("invoice_id", event.InvoiceID),
			zap.String("provider_price_id", sub.PriceID),
		)
		return nil
	}

	if _, err := s.ledger.Append(ctx, ledgerdomain.AppendRequest{
		CustomerID: customerID,
		Delta:      grant.Tokens,
		Kind:       ledgerdomain.KindMonthlyGrant,
		ExternalID: event.InvoiceID,
		Reason:     fmt.Sprintf("plan %s renewal", grant.PlanID),
	}); err != nil {
		return err
	}
	return s.subscriptions.Project(ctx, event.ProviderSubscriptionID)
}

// handleInvoicePaymentFailed flags the subscription, never the ledger.
func (s *service) handleInvoicePaymentFailed(ctx context.Context, event *domain.WebhookEvent) error {
	if event.ProviderSubscriptionID == "" {
		return nil
	}
	return s.subscriptions.MarkPastDue(ctx, event.ProviderSubscriptionID)
}

// resolveCustomer attributes provider identifiers to a local account.
// The linked provider customer id wins; checkout reference ids are the
// fallback for first-time purchases, and resolving through them links
// the provider customer for every later event.
func (s *service) resolveCustomer(ctx context.Context, providerCustomerID, clientReferenceID, metadataCustomerID string) (snowflake.ID, error) {
	if providerCustomerID != "" {
		customer, err := s.customers.FindByProviderCustomerID(ctx, providerCustomerID)
		if err == nil {
			return customer.ID, nil
		}
		if !errors.Is(err, customerdomain.ErrCustomerNotFound) {
			return 0, err
		}
	}

	for _, raw := range []string{clientReferenceID, metadataCustomerID} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		customerID := snowflake.ID(id)
		if _, err := s.customers.Get(ctx, customerID); err != nil {
			continue
		}
		if providerCustomerID != "" {
			if err := s.customers.LinkProviderCustomer(ctx, customerID, providerCustomerID); err != nil {
				return 0, err
			}
		}
		return customerID, nil
	}
	return 0, domain.ErrMissingCustomerMapping
}
