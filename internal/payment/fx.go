package payment

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/renderway/internal/config"
	"github.com/smallbiznis/renderway/internal/payment/adapters"
	"github.com/smallbiznis/renderway/internal/payment/adapters/stripe"
	"github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/payment/repository"
	"github.com/smallbiznis/renderway/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(provideRegistry),
	fx.Provide(provideProviderClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

func provideRegistry(cfg config.Config) (*adapters.Registry, error) {
	stripeAdapter, err := stripe.NewAdapter(cfg.StripeWebhookSecret)
	if err != nil {
		return nil, err
	}
	return adapters.NewRegistry(stripeAdapter), nil
}

func provideProviderClient(cfg config.Config) domain.ProviderClient {
	return stripe.NewClient(cfg.StripeSecretKey, cfg.StripeAPIBaseURL)
}
