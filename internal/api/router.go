package api

import (
	"net/http"

	"github.com/flexprice/entitlements/internal/api/cron"
	v1 "github.com/flexprice/entitlements/internal/api/v1"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/rest/middleware"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Balance *v1.BalanceHandler
	Product *v1.ProductHandler

	CronBalance *cron.BalanceCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Deployment.Mode == types.ModeLocal {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = log.GinWriter()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.SentryMiddleware(cfg),
		middleware.ScopeMiddleware,
		middleware.SentryTenantContextMiddleware,
		middleware.LoggingMiddleware(log),
		middleware.ErrorHandler(log),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1Router := router.Group("/v1")
	{
		balances := v1Router.Group("/balances")
		balances.POST("/track", handlers.Balance.TrackUsage)
		balances.GET("/check", handlers.Balance.CheckBalance)
		balances.POST("/set", handlers.Balance.SetBalance)
		balances.POST("/usage", handlers.Balance.SetUsage)
		balances.POST("/quantity/preview", handlers.Balance.PreviewQuantity)
		balances.POST("/quantity", handlers.Balance.UpdateQuantity)
		balances.POST("/product_switch", handlers.Product.SwitchProduct)

		entities := v1Router.Group("/entities")
		entities.POST("/check", handlers.Balance.CheckEntityCreation)

		cronGroup := v1Router.Group("/cron")
		cronGroup.POST("/balances/reset", handlers.CronBalance.ResetBalances)
	}

	return router
}
