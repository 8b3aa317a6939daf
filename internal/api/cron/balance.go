package cron

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/flexprice/entitlements/internal/api/dto"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/service"
	"github.com/gin-gonic/gin"
)

// BalanceCronHandler handles the periodic balance reset
type BalanceCronHandler struct {
	resetService service.ResetService
	logger       *logger.Logger
}

func NewBalanceCronHandler(resetService service.ResetService, logger *logger.Logger) *BalanceCronHandler {
	return &BalanceCronHandler{
		resetService: resetService,
		logger:       logger,
	}
}

// ResetBalances resets every ledger row whose period has ended
func (h *BalanceCronHandler) ResetBalances(c *gin.Context) {
	h.logger.Infow("starting balance reset cron job", "time", time.Now().UTC().Format(time.RFC3339))

	// an empty body resets at the current time
	var req dto.ResetBalancesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Errorw("failed to parse request body", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.resetService.ResetDueBalances(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("failed to reset balances", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed balance reset cron job",
		"scanned", resp.Scanned,
		"reset", resp.Reset,
		"failed", resp.Failed,
	)
	c.JSON(http.StatusOK, resp)
}
