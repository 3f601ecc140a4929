package generation

import (
	"time"

	"go.uber.org/fx"

	"github.com/smallbiznis/renderway/internal/config"
	"github.com/smallbiznis/renderway/internal/generation/backend"
	"github.com/smallbiznis/renderway/internal/generation/domain"
	"github.com/smallbiznis/renderway/internal/generation/service"
)

var Module = fx.Module("generation.service",
	fx.Provide(provideBackend),
	fx.Provide(service.NewService),
)

func provideBackend(cfg config.Config) domain.Backend {
	return backend.NewHTTPBackend(
		cfg.GenerationBackendURL,
		time.Duration(cfg.GenerationTimeoutSeconds)*time.Second,
	)
}
