package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/bootstrap"
	"vpnstore/internal/bot"
	"vpnstore/internal/config"
	cronpkg "vpnstore/internal/cron"
	"vpnstore/internal/handler"
	"vpnstore/internal/handler/api"
	"vpnstore/internal/metrics"
	"vpnstore/internal/middleware"
	"vpnstore/internal/notifier"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/panel"
	"vpnstore/internal/payment"
	"vpnstore/internal/pkg/telegram"
	"vpnstore/internal/promo"
	"vpnstore/internal/repository"
	"vpnstore/internal/router"
	"vpnstore/internal/wallet"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Server.Env == "development" {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, cfg.Payment.ManualCardNumber, cfg.Bot.AdminHandle); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}
	if hasArg("--migrate") {
		logger.Info("Schema migration and default seed completed")
		return
	}

	metrics.MustRegister()
	rdb := bootstrap.Redis(cfg.Redis, logger)

	// --- Upstreams ---
	panelClient, err := panel.NewPanelClient(&cfg.Panel)
	if err != nil {
		logger.Fatal("Failed to create panel client", zap.Error(err))
	}
	gateway := payment.NewTetra98Gateway(cfg.Tetra98.BaseURL, cfg.Tetra98.APIKey, cfg.Tetra98.Timeout)
	botAPI := telegram.NewBotAPI(cfg.Bot.Token)

	// --- Core ---
	ledger := wallet.NewLedger(db, logger)
	promos := promo.NewResolver(db, logger)
	orch := orchestrator.New(orchestrator.Deps{
		DB:      db,
		Ledger:  ledger,
		Promos:  promos,
		Panel:   panelClient,
		Gateway: gateway,
		Config: orchestrator.Config{
			AppURL:          cfg.Server.AppURL,
			MinWalletCharge: cfg.Payment.MinWalletChargeTomans,
			MaxWalletCharge: cfg.Payment.MaxWalletChargeTomans,
		},
		Logger: logger,
	})
	notify := notifier.New(botAPI, panelClient, db, cfg.Bot.AdminIDs, logger)

	// --- Bot ---
	teleBot, err := bot.New(bot.Deps{
		Config:   cfg,
		DB:       db,
		Payments: orch,
		Notify:   notify,
		Ledger:   ledger,
		Limiter:  middleware.NewLimiter(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window),
		Redis:    rdb,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// --- HTTP ---
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.Setup(e, router.Options{
		API: api.Deps{
			Payments: repository.NewPaymentRepository(db),
			Plans:    repository.NewPlanRepository(db),
			Users:    repository.NewUserRepository(db),
			Reviewer: orch,
			Notify:   notify,
			Promos:   promos,
			Ledger:   ledger,
			Logger:   logger,
		},
		Settings:      repository.NewSettingRepository(db),
		Stats:         repository.NewStatsRepository(db),
		Callbacks:     handler.NewPaymentCallbackHandler(orch, notify, logger),
		APIKey:        cfg.API.Key,
		UpdateDeduper: middleware.NewUpdateDeduper(rdb, 10*time.Minute),
		Webhook:       teleBot.WebhookHandler(),
		Logger:        logger,
	})

	// --- Cron ---
	scheduler := cronpkg.New(cronpkg.Deps{
		DB:         db,
		Panel:      panelClient,
		Payments:   orch,
		Alerts:     notify,
		PendingTTL: cfg.Payment.PendingTTL,
		Logger:     logger,
	})
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting server", zap.String("addr", addr), zap.String("panel", panelClient.PanelType()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	go teleBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	teleBot.Stop()
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}
