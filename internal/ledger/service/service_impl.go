package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/renderway/internal/clock"
	"github.com/smallbiznis/renderway/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/renderway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, req domain.AppendRequest) (bool, error) {
	if err := validate(req); err != nil {
		return false, err
	}

	entry := &domain.LedgerEntry{
		ID:         s.genID.Generate(),
		CustomerID: req.CustomerID,
		Delta:      req.Delta,
		Kind:       req.Kind,
		ExternalID: strings.TrimSpace(req.ExternalID),
		Reason:     strings.TrimSpace(req.Reason),
		CreatedAt:  s.clock.Now(),
	}

	applied, err := s.repo.Append(ctx, s.db, entry)
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Info("ledger entry already exists",
			zap.String("customer_id", req.CustomerID.String()),
			zap.String("kind", string(req.Kind)),
			zap.String("external_id", entry.ExternalID),
		)
		return false, nil
	}

	s.log.Info("appended ledger entry",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("kind", string(req.Kind)),
		zap.String("external_id", entry.ExternalID),
		zap.Int64("delta", req.Delta),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(req.Kind))
	}
	return true, nil
}

func (s *Service) BalanceOf(ctx context.Context, customerID snowflake.ID) (int64, error) {
	if customerID == 0 {
		return 0, domain.ErrInvalidCustomer
	}
	return s.repo.SumBalance(ctx, s.db, customerID)
}

func (s *Service) ListEntries(ctx context.Context, customerID snowflake.ID, limit int) ([]domain.LedgerEntry, error) {
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	return s.repo.List(ctx, s.db, customerID, limit)
}

func validate(req domain.AppendRequest) error {
	if req.CustomerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if !domain.ValidKind(req.Kind) {
		return domain.ErrInvalidKind
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return domain.ErrInvalidExternalID
	}
	if req.Delta == 0 {
		return domain.ErrInvalidDelta
	}
	// Grants and refunds add tokens, spends remove them. A mismatched
	// sign is a programming error, not data.
	switch req.Kind {
	case domain.KindSpend:
		if req.Delta > 0 {
			return domain.ErrInvalidDelta
		}
	default:
		if req.Delta < 0 {
			return domain.ErrInvalidDelta
		}
	}
	return nil
}
