package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vpnstore/internal/handler"
	"vpnstore/internal/handler/api"
	"vpnstore/internal/middleware"
	"vpnstore/internal/repository"
)

// Options carries what Setup mounts.
type Options struct {
	API           api.Deps
	Settings      *repository.SettingRepository
	Stats         *repository.StatsRepository
	Callbacks     *handler.PaymentCallbackHandler
	APIKey        string
	UpdateDeduper middleware.UpdateDeduper
	// Webhook is nil when the bot long-polls.
	Webhook http.Handler
	Logger  *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, o Options) {
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(o.Logger))

	payments := api.NewPaymentHandler(o.API)
	plans := api.NewPlanHandler(o.API)
	promos := api.NewPromoHandler(o.API)
	users := api.NewUserHandler(o.API)
	settings := api.NewSettingsHandler(o.Settings, o.Logger)
	stats := api.NewStatsHandler(o.Stats, o.Logger)

	g := e.Group("/api")
	g.Use(middleware.CORS())
	g.Use(middleware.APIAuth(o.APIKey))

	g.GET("/payments", payments.List)
	g.GET("/payments/:id", payments.Get)
	g.POST("/payments/:id/approve", payments.Approve)
	g.POST("/payments/:id/reject", payments.Reject)
	g.POST("/payments/:id/fail", payments.Fail)

	g.GET("/plans", plans.List)
	g.POST("/plans", plans.Create)
	g.GET("/plans/:id", plans.Get)
	g.PUT("/plans/:id", plans.Update)
	g.DELETE("/plans/:id", plans.Delete)

	g.GET("/promos", promos.List)
	g.POST("/promos", promos.Create)
	g.DELETE("/promos/:id", promos.Deactivate)

	g.GET("/users", users.List)
	g.GET("/users/:telegram_id", users.Get)
	g.POST("/users/:telegram_id/wallet", users.AdjustWallet)
	g.POST("/users/:telegram_id/ban", users.SetBanned)

	g.GET("/settings", settings.Get)
	g.PUT("/settings", settings.Update)

	g.GET("/stats", stats.Get)

	// Gateway server-to-server callback plus the payer's browser return.
	e.POST("/callback/tetra98", o.Callbacks.Tetra98Callback)
	e.GET("/callback/tetra98", o.Callbacks.Tetra98Return)

	if o.Webhook != nil {
		wh := e.Group("/bot")
		wh.Use(middleware.TelegramIPCheck())
		wh.Use(middleware.TelegramUpdateDedup(o.UpdateDeduper))
		wh.POST("/webhook", echo.WrapHandler(o.Webhook))
	} else {
		o.Logger.Info("Telegram webhook route disabled, bot is long polling")
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
