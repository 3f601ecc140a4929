package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/catalog/repository"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo repository.Repository
}

type service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo repository.Repository
}

func NewService(p Params) domain.Service {
	return &service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

// ResolveGrant checks plans first, then active top-up packs.
func (s *service) ResolveGrant(ctx context.Context, providerPriceID string) (domain.Grant, error) {
	if providerPriceID == "" {
		return domain.Grant{}, domain.ErrInvalidPriceID
	}

	plan, err := s.repo.FindPlanByPriceID(ctx, s.db, providerPriceID)
	if err != nil {
		return domain.Grant{}, err
	}
	if plan != nil {
		return domain.Grant{
			Kind:   domain.GrantKindPlan,
			PlanID: plan.PlanID,
			Tokens: plan.MonthlyTokens,
		}, nil
	}

	pack, err := s.repo.FindTopupByPriceID(ctx, s.db, providerPriceID)
	if err != nil {
		return domain.Grant{}, err
	}
	if pack != nil {
		return domain.Grant{
			Kind:   domain.GrantKindTopup,
			Tokens: pack.Tokens,
		}, nil
	}

	s.log.Warn("price not mapped to any plan or topup pack",
		zap.String("provider_price_id", providerPriceID),
	)
	return domain.Grant{}, domain.ErrPriceNotMapped
}

func (s *service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx, s.db)
}

func (s *service) ListTopupPacks(ctx context.Context) ([]domain.TopupPack, error) {
	return s.repo.ListTopupPacks(ctx, s.db)
}
