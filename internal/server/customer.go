package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
)

type createCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	customer, err := s.customerSvc.Create(c.Request.Context(), customerdomain.CreateRequest{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (s *Server) GetBalance(c *gin.Context) {
	customerID, ok := s.customerIDParam(c)
	if !ok {
		return
	}

	if balance, hit := s.balanceCache.GetBalance(customerID); hit {
		c.JSON(http.StatusOK, gin.H{"customer_id": customerID.String(), "balance": balance})
		return
	}

	if _, err := s.customerSvc.Get(c.Request.Context(), customerID); err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.ledgerSvc.BalanceOf(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.balanceCache.SetBalance(customerID, balance)

	c.JSON(http.StatusOK, gin.H{"customer_id": customerID.String(), "balance": balance})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	customerID, ok := s.customerIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	if _, err := s.customerSvc.Get(c.Request.Context(), customerID); err != nil {
		AbortWithError(c, err)
		return
	}
	entries, err := s.ledgerSvc.ListEntries(c.Request.Context(), customerID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) GetSubscription(c *gin.Context) {
	customerID, ok := s.customerIDParam(c)
	if !ok {
		return
	}

	state, err := s.subscriptionSvc.GetState(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) customerIDParam(c *gin.Context) (snowflake.ID, bool) {
	raw := c.Param("id")
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
