package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/renderway/internal/cache"
	"github.com/smallbiznis/renderway/internal/catalog"
	"github.com/smallbiznis/renderway/internal/clock"
	"github.com/smallbiznis/renderway/internal/config"
	"github.com/smallbiznis/renderway/internal/customer"
	"github.com/smallbiznis/renderway/internal/generation"
	"github.com/smallbiznis/renderway/internal/ledger"
	"github.com/smallbiznis/renderway/internal/migration"
	"github.com/smallbiznis/renderway/internal/observability"
	"github.com/smallbiznis/renderway/internal/payment"
	"github.com/smallbiznis/renderway/internal/ratelimit"
	"github.com/smallbiznis/renderway/internal/server"
	"github.com/smallbiznis/renderway/internal/spend"
	"github.com/smallbiznis/renderway/internal/subscription"
	"github.com/smallbiznis/renderway/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		customer.Module,
		catalog.Module,
		ledger.Module,
		subscription.Module,
		payment.Module,
		spend.Module,
		generation.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
