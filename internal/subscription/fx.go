package subscription

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/renderway/internal/subscription/repository"
	"github.com/smallbiznis/renderway/internal/subscription/service"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
