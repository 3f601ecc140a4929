package spend

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/renderway/internal/spend/service"
)

var Module = fx.Module("spend.service",
	fx.Provide(service.NewService),
)
