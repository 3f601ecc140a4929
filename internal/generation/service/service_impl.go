package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/renderway/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/renderway/internal/observability/metrics"
	spenddomain "github.com/smallbiznis/renderway/internal/spend/domain"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Spend      spenddomain.Service
	Backend    domain.Backend
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	log        *zap.Logger
	spend      spenddomain.Service
	backend    domain.Backend
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		log:        p.Log.Named("generation.service"),
		spend:      p.Spend,
		backend:    p.Backend,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *service) Generate(ctx context.Context, req domain.Request) (domain.Result, error) {
	if req.CustomerID == 0 {
		return domain.Result{}, domain.ErrInvalidCustomer
	}
	cost := domain.CostFor(req.Fidelity)
	if cost == 0 {
		return domain.Result{}, domain.ErrInvalidFidelity
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return domain.Result{}, domain.ErrInvalidImageURL
	}

	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	reservation, err := s.spend.TrySpend(ctx, req.CustomerID, cost, jobID)
	if err != nil {
		if s.obsMetrics != nil && errors.Is(err, spenddomain.ErrInsufficientBalance) {
			s.obsMetrics.RecordGeneration(ctx, string(req.Fidelity), "insufficient_balance")
		}
		return domain.Result{JobID: jobID, Balance: reservation.Balance}, err
	}

	resultURL, err := s.backend.Render(ctx, domain.RenderJob{
		JobID:    jobID,
		RoomType: req.RoomType,
		Style:    req.Style,
		Fidelity: req.Fidelity,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		s.log.Warn("render failed, refunding reservation",
			zap.String("customer_id", req.CustomerID.String()),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		refund, rerr := s.spend.Refund(ctx, req.CustomerID, jobID)
		if rerr != nil {
			// The reservation stands; the refund retries on the next
			// attempt for this job id.
			s.log.Error("refund failed after render failure",
				zap.String("customer_id", req.CustomerID.String()),
				zap.String("job_id", jobID),
				zap.Error(rerr),
			)
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordGeneration(ctx, string(req.Fidelity), "backend_failure")
		}
		return domain.Result{JobID: jobID, Balance: refund.Balance}, domain.ErrBackendFailure
	}

	s.log.Info("generation completed",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("job_id", jobID),
		zap.String("fidelity", string(req.Fidelity)),
		zap.Int64("balance", reservation.Balance),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordGeneration(ctx, string(req.Fidelity), "completed")
	}
	return domain.Result{
		JobID:     jobID,
		ResultURL: resultURL,
		Balance:   reservation.Balance,
	}, nil
}
