package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	generationdomain "github.com/smallbiznis/renderway/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	spenddomain "github.com/smallbiznis/renderway/internal/spend/domain"
	subscriptiondomain "github.com/smallbiznis/renderway/internal/subscription/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, customerdomain.ErrEmailTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "email already registered",
		}
	case errors.Is(err, spenddomain.ErrSpendRefunded):
		return http.StatusConflict, errorPayload{
			Type:    "spend_refunded",
			Message: "job was refunded, submit a new job id",
		}
	case errors.Is(err, spenddomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "token balance too low",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "rate limit exceeded",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, generationdomain.ErrBackendFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "backend_failure",
			Message: "render backend failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, customerdomain.ErrInvalidCustomer),
		errors.Is(err, customerdomain.ErrInvalidEmail),
		errors.Is(err, ledgerdomain.ErrInvalidCustomer),
		errors.Is(err, catalogdomain.ErrInvalidPriceID),
		errors.Is(err, generationdomain.ErrInvalidCustomer),
		errors.Is(err, generationdomain.ErrInvalidFidelity),
		errors.Is(err, generationdomain.ErrInvalidImageURL),
		errors.Is(err, spenddomain.ErrInvalidCost),
		errors.Is(err, spenddomain.ErrInvalidJobID),
		errors.Is(err, subscriptiondomain.ErrInvalidCustomer):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, catalogdomain.ErrPriceNotMapped),
		errors.Is(err, subscriptiondomain.ErrStateNotFound),
		errors.Is(err, spenddomain.ErrSpendNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
