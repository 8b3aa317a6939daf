package v1

import (
	"net/http"

	"github.com/flexprice/entitlements/internal/api/dto"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/rest/middleware"
	"github.com/flexprice/entitlements/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BalanceHandler struct {
	service service.BalanceService
	limiter *middleware.RateLimiter
	log     *logger.Logger
}

func NewBalanceHandler(service service.BalanceService, limiter *middleware.RateLimiter, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{service: service, limiter: limiter, log: log}
}

// bind decodes the JSON body into req and applies the customer rate limit.
func (h *BalanceHandler) bind(c *gin.Context, req interface{ GetCustomerID() string }) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.log.Errorw("failed to bind JSON", "path", c.FullPath(), "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return h.allow(c, req.GetCustomerID())
}

func (h *BalanceHandler) allow(c *gin.Context, customerID string) bool {
	middleware.SetCustomerID(c, customerID)
	if err := h.limiter.Allow(c.Request.Context(), customerID); err != nil {
		c.Error(err)
		return false
	}
	return true
}

// @Summary Track usage
// @Description Deduct usage of a feature from the customer's merged balance. A negative value refunds.
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.TrackUsageRequest true "Usage to deduct"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /balances/track [post]
func (h *BalanceHandler) TrackUsage(c *gin.Context) {
	var req dto.TrackUsageRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.DeductUsage(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Check balance
// @Description Read the merged balance of a feature and whether the required amount is available
// @Tags Balances
// @Produce json
// @Param customer_id query string true "Customer ID"
// @Param feature_id query string true "Feature ID"
// @Param entity_id query string false "Entity ID"
// @Param required_balance query string false "Amount about to be used, defaults to 1"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /balances/check [get]
func (h *BalanceHandler) CheckBalance(c *gin.Context) {
	var req dto.CheckBalanceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}
	if raw := c.Query("required_balance"); raw != "" {
		required, err := decimalParam(raw)
		if err != nil {
			c.Error(err)
			return
		}
		req.RequiredBalance = &required
	}
	if !h.allow(c, req.CustomerID) {
		return
	}

	resp, err := h.service.CheckBalance(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Set balance
// @Description Override the merged current balance of a feature. Usage is kept.
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.SetBalanceRequest true "Target balance"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /balances/set [post]
func (h *BalanceHandler) SetBalance(c *gin.Context) {
	var req dto.SetBalanceRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.UpdateBalance(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Set usage
// @Description Move the merged usage of a feature to the given value
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.SetUsageRequest true "Target usage"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /balances/usage [post]
func (h *BalanceHandler) SetUsage(c *gin.Context) {
	var req dto.SetUsageRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.UpdateUsage(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Preview quantity change
// @Description Price a change of allocated quantity without applying it
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.QuantityChangeRequest true "New quantity"
// @Success 200 {object} dto.QuantityChangeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /balances/quantity/preview [post]
func (h *BalanceHandler) PreviewQuantity(c *gin.Context) {
	var req dto.QuantityChangeRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.PreviewQuantityChange(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update quantity
// @Description Apply a change of allocated quantity and bill the prorated difference
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.QuantityChangeRequest true "New quantity"
// @Success 200 {object} dto.QuantityChangeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /balances/quantity [post]
func (h *BalanceHandler) UpdateQuantity(c *gin.Context) {
	var req dto.QuantityChangeRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.UpdateQuantity(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Check entity creation
// @Description Check whether more sub-entities of an allocated feature may be created
// @Tags Entities
// @Accept json
// @Produce json
// @Param request body dto.EntityCheckRequest true "Entities to create"
// @Success 200 {object} dto.EntityCheckResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Router /entities/check [post]
func (h *BalanceHandler) CheckEntityCreation(c *gin.Context) {
	var req dto.EntityCheckRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.CheckEntityCreation(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func decimalParam(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHintf("%q is not a valid number", raw).
			Mark(ierr.ErrValidation)
	}
	return d, nil
}
