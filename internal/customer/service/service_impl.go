package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/clock"
	"github.com/smallbiznis/renderway/internal/customer/domain"
	"github.com/smallbiznis/renderway/internal/customer/repository"
	"github.com/smallbiznis/renderway/pkg/db"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  repository.Repository
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	customer := &domain.Customer{
		ID:        s.genID.Generate(),
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info("created customer",
		zap.String("customer_id", customer.ID.String()),
		zap.String("email", email),
	)
	return customer, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Customer, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	customer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (s *service) FindByProviderCustomerID(ctx context.Context, providerCustomerID string) (*domain.Customer, error) {
	if strings.TrimSpace(providerCustomerID) == "" {
		return nil, domain.ErrCustomerNotFound
	}
	customer, err := s.repo.FindByProviderCustomerID(ctx, s.db, providerCustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (s *service) LinkProviderCustomer(ctx context.Context, id snowflake.ID, providerCustomerID string) error {
	if id == 0 {
		return domain.ErrInvalidCustomer
	}
	providerCustomerID = strings.TrimSpace(providerCustomerID)
	if providerCustomerID == "" {
		return nil
	}

	existing, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrCustomerNotFound
	}
	if existing.ProviderCustomerID == providerCustomerID {
		return nil
	}

	if err := s.repo.SetProviderCustomerID(ctx, s.db, id, providerCustomerID); err != nil {
		return err
	}
	s.log.Info("linked provider customer",
		zap.String("customer_id", id.String()),
		zap.String("provider_customer_id", providerCustomerID),
	)
	return nil
}
