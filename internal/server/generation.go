package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	generationdomain "github.com/smallbiznis/renderway/internal/generation/domain"
	spenddomain "github.com/smallbiznis/renderway/internal/spend/domain"
)

type createGenerationRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	RoomType   string `json:"room_type"`
	Style      string `json:"style"`
	Fidelity   string `json:"fidelity" binding:"required"`
	ImageURL   string `json:"image_url" binding:"required"`
	JobID      string `json:"job_id"`
}

func (s *Server) CreateGeneration(c *gin.Context) {
	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if s.generateLimiter.Enabled() {
		allowed, lerr := s.generateLimiter.AllowCustomer(ctx, customerID.String())
		if lerr != nil {
			AbortWithError(c, lerr)
			return
		}
		if !allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, "generations", "customer_rate")
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	// A caller-supplied job id can arrive concurrently from retries;
	// the lock collapses duplicates to one backend call.
	if jobID := strings.TrimSpace(req.JobID); jobID != "" && s.generateLimiter.Enabled() {
		token, locked, lerr := s.generateLimiter.TryLockJob(ctx, customerID.String(), jobID)
		if lerr != nil {
			AbortWithError(c, lerr)
			return
		}
		if !locked {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, "generations", "job_lock")
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		defer s.generateLimiter.ReleaseJob(ctx, customerID.String(), jobID, token)
	}

	result, err := s.generationSvc.Generate(ctx, generationdomain.Request{
		CustomerID: customerID,
		RoomType:   req.RoomType,
		Style:      req.Style,
		Fidelity:   generationdomain.Fidelity(strings.TrimSpace(req.Fidelity)),
		ImageURL:   req.ImageURL,
		JobID:      req.JobID,
	})
	if err != nil {
		if errors.Is(err, spenddomain.ErrInsufficientBalance) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": gin.H{
					"type":    "insufficient_balance",
					"message": "token balance too low",
					"balance": result.Balance,
				},
			})
			return
		}
		AbortWithError(c, err)
		return
	}
	s.balanceCache.Invalidate(customerID)

	c.JSON(http.StatusCreated, result)
}
