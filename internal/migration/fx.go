package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/config"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/seed"
	subscriptiondomain "github.com/smallbiznis/renderway/internal/subscription/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are development targets; let gorm derive
			// the schema from the models.
			if err := conn.AutoMigrate(
				&customerdomain.Customer{},
				&catalogdomain.Plan{},
				&catalogdomain.TopupPack{},
				&ledgerdomain.LedgerEntry{},
				&paymentdomain.PaymentEvent{},
				&subscriptiondomain.SubscriptionState{},
			); err != nil {
				return err
			}
		}

		if err := seed.EnsureDefaultCatalog(conn); err != nil {
			return err
		}
		if cfg.SeedDemoData {
			return seed.EnsureDemoCustomer(conn)
		}
		return nil
	}),
)
