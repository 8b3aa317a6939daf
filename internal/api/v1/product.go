package v1

import (
	"net/http"

	"github.com/flexprice/entitlements/internal/api/dto"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/service"
	"github.com/gin-gonic/gin"
)

type ProductHandler struct {
	service service.ResetService
	log     *logger.Logger
}

func NewProductHandler(service service.ResetService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{service: service, log: log}
}

// @Summary Switch product
// @Description Carry rollovers and usage from one product instance of a customer to another and expire the old rows
// @Tags Balances
// @Accept json
// @Produce json
// @Param request body dto.ProductSwitchRequest true "Product switch"
// @Success 200 {object} dto.ProductSwitchResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /balances/product_switch [post]
func (h *ProductHandler) SwitchProduct(c *gin.Context) {
	var req dto.ProductSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.TransferOnProductSwitch(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
