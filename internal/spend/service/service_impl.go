package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/clock"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/renderway/internal/observability/metrics"
	"github.com/smallbiznis/renderway/internal/spend/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerRepo ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerRepo ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("spend.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerRepo: p.LedgerRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *service) TrySpend(ctx context.Context, customerID snowflake.ID, cost int64, jobID string) (domain.SpendResult, error) {
	if customerID == 0 {
		return domain.SpendResult{}, domain.ErrInvalidCustomer
	}
	if cost <= 0 {
		return domain.SpendResult{}, domain.ErrInvalidCost
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.SpendResult{}, domain.ErrInvalidJobID
	}

	var result domain.SpendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCustomer(ctx, tx, customerID); err != nil {
			return err
		}

		existing, err := s.ledgerRepo.FindByDedupe(ctx, tx, customerID, ledgerdomain.KindSpend, jobID)
		if err != nil {
			return err
		}
		balance, err := s.ledgerRepo.SumBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if existing != nil {
			refunded, rerr := s.ledgerRepo.FindByDedupe(ctx, tx, customerID, ledgerdomain.KindRefund, jobID)
			if rerr != nil {
				return rerr
			}
			if refunded != nil {
				// The job spent and was refunded; a retry must not ride
				// the released reservation.
				result = domain.SpendResult{Balance: balance}
				return domain.ErrSpendRefunded
			}
			// The job already reserved its tokens; report success so a
			// retried request does not double-charge.
			result = domain.SpendResult{Applied: true, Balance: balance}
			return nil
		}
		if balance < cost {
			result = domain.SpendResult{Balance: balance}
			return domain.ErrInsufficientBalance
		}

		applied, err := s.ledgerRepo.Append(ctx, tx, &ledgerdomain.LedgerEntry{
			ID:         s.genID.Generate(),
			CustomerID: customerID,
			Delta:      -cost,
			Kind:       ledgerdomain.KindSpend,
			ExternalID: jobID,
			Reason:     "generation reservation",
			CreatedAt:  s.clock.Now(),
		})
		if err != nil {
			return err
		}
		result = domain.SpendResult{Applied: applied, Balance: balance - cost}
		return nil
	})
	if err != nil {
		return result, err
	}

	s.log.Info("reserved tokens",
		zap.String("customer_id", customerID.String()),
		zap.String("job_id", jobID),
		zap.Int64("cost", cost),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}

func (s *service) Refund(ctx context.Context, customerID snowflake.ID, jobID string) (domain.SpendResult, error) {
	if customerID == 0 {
		return domain.SpendResult{}, domain.ErrInvalidCustomer
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.SpendResult{}, domain.ErrInvalidJobID
	}

	var result domain.SpendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCustomer(ctx, tx, customerID); err != nil {
			return err
		}

		// The refund amount comes from the original spend entry, never
		// from the caller.
		spent, err := s.ledgerRepo.FindByDedupe(ctx, tx, customerID, ledgerdomain.KindSpend, jobID)
		if err != nil {
			return err
		}
		if spent == nil {
			return domain.ErrSpendNotFound
		}

		applied, err := s.ledgerRepo.Append(ctx, tx, &ledgerdomain.LedgerEntry{
			ID:         s.genID.Generate(),
			CustomerID: customerID,
			Delta:      -spent.Delta,
			Kind:       ledgerdomain.KindRefund,
			ExternalID: jobID,
			Reason:     "generation failed",
			CreatedAt:  s.clock.Now(),
		})
		if err != nil {
			return err
		}
		balance, err := s.ledgerRepo.SumBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}
		result = domain.SpendResult{Applied: applied, Balance: balance}
		return nil
	})
	if err != nil {
		return result, err
	}

	if result.Applied {
		s.log.Info("refunded reservation",
			zap.String("customer_id", customerID.String()),
			zap.String("job_id", jobID),
			zap.Int64("balance", result.Balance),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRefund(ctx)
		}
	}
	return result, nil
}

// lockCustomer serializes balance-affecting writes per customer; the
// lock releases with the transaction. MySQL consistent reads would let
// two reservations sum the same balance, so it takes a row lock on the
// customer record instead of an advisory lock.
func lockCustomer(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) error {
	switch tx.Dialector.Name() {
	case "postgres":
		return tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", int64(customerID)).Error
	case "mysql":
		return tx.WithContext(ctx).Exec("SELECT id FROM customers WHERE id = ? FOR UPDATE", int64(customerID)).Error
	default:
		// sqlite serializes writers itself.
		return nil
	}
}
