package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
)

const (
	demoCustomerName  = "Demo Studio"
	demoCustomerEmail = "demo@renderway.dev"
)

var defaultPlans = []catalogdomain.Plan{
	{PlanID: "starter_monthly", ProviderPriceID: "price_starter_monthly", MonthlyTokens: 100},
	{PlanID: "studio_monthly", ProviderPriceID: "price_studio_monthly", MonthlyTokens: 500},
	{PlanID: "agency_monthly", ProviderPriceID: "price_agency_monthly", MonthlyTokens: 2000},
}

var defaultTopupPacks = []catalogdomain.TopupPack{
	{ProviderPriceID: "price_pack_50", Tokens: 50, Active: true},
	{ProviderPriceID: "price_pack_200", Tokens: 200, Active: true},
	{ProviderPriceID: "price_pack_1000", Tokens: 1000, Active: true},
}

// EnsureDefaultCatalog seeds the plan and top-up catalog so a fresh
// install maps the standard provider prices.
func EnsureDefaultCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans {
			var count int64
			if err := tx.Model(&catalogdomain.Plan{}).
				Where("plan_id = ?", plan.PlanID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			plan.CreatedAt = time.Now().UTC()
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		for _, pack := range defaultTopupPacks {
			var count int64
			if err := tx.Model(&catalogdomain.TopupPack{}).
				Where("provider_price_id = ?", pack.ProviderPriceID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			pack.CreatedAt = time.Now().UTC()
			if err := tx.Create(&pack).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoCustomer seeds a demo account for development environments.
func EnsureDemoCustomer(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&customerdomain.Customer{}).
			Where("email = ?", demoCustomerEmail).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		now := time.Now().UTC()
		return tx.Create(&customerdomain.Customer{
			ID:        node.Generate(),
			Name:      demoCustomerName,
			Email:     demoCustomerEmail,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
}
