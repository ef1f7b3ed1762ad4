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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"referralhub/internal/config"
	"referralhub/internal/handler"
	"referralhub/internal/model"
	"referralhub/internal/pricing"
	"referralhub/internal/repository"
	"referralhub/internal/service"
	jwtpkg "referralhub/pkg/jwt"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the referral HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 3. Connect to the database
	db, err := config.NewDB(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.AutoMigrateEnabled() {
		if err := model.AutoMigrate(db); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed")
	}

	// 5. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory state store")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 6. Initialize repositories and pricing
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	catalog, err := pricing.NewCatalogFromConfig(cfg.Pricing)
	if err != nil {
		logger.Fatal("invalid pricing catalog", zap.Error(err))
	}

	// 7. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)

	// 8. Initialize notification dispatcher
	var sender service.MailSender
	if cfg.SMTP.Host != "" {
		sender, err = service.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logger.Fatal("invalid smtp config", zap.Error(err))
		}
		logger.Info("SMTP mail sender initialized", zap.String("host", cfg.SMTP.Host))
	} else {
		sender = service.NewLogSender(logger)
		logger.Info("SMTP not configured, notifications are logged only")
	}
	dispatcher := service.NewDispatcher(sender, stateStore, logger, service.DispatcherConfigFrom(cfg.Notify))

	// 9. Initialize services
	ledgerCfg := service.LedgerConfigFrom(cfg.Referral)
	incentive, err := service.DescribeIncentive(catalog, ledgerCfg.RefereeIncentiveTier)
	if err != nil {
		logger.Fatal("invalid referee incentive tier", zap.Error(err))
	}
	clock := func() time.Time { return time.Now().UTC() }
	codeService := service.NewReferralCodeService(repos.Codes, repos.Users)
	attributionService := service.NewAttributionService(codeService, uow, catalog, ledgerCfg, logger, service.WithClock(clock))
	dashboardService := service.NewDashboardService(repos, ledgerCfg)

	// 10. Initialize handlers
	referralHandler := handler.NewReferralHandler(codeService, attributionService, dashboardService, dispatcher, incentive,
		handler.WithHandlerClock(clock))
	adminHandler := handler.NewAdminHandler(codeService)

	// 11. Setup router
	router := handler.SetupRouter(cfg, logger, jwtManager, referralHandler, adminHandler)

	// 12. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 13. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 14. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(ctx); err != nil {
		logger.Warn("pending notifications dropped on shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
	return nil
}
