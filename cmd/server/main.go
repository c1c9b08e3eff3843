package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	"github.com/membergate/membership-service/internal/infrastructure/database"
	"github.com/membergate/membership-service/internal/infrastructure/group"
	httpServer "github.com/membergate/membership-service/internal/infrastructure/http"
	"github.com/membergate/membership-service/internal/infrastructure/notifier"
	"github.com/membergate/membership-service/internal/infrastructure/provider/cardlink"
	"github.com/membergate/membership-service/internal/infrastructure/provider/invoice"
	"github.com/membergate/membership-service/internal/retry"
	"github.com/membergate/membership-service/internal/scheduler"
	"github.com/membergate/membership-service/internal/usecase"
	"github.com/membergate/membership-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, cfg.Service.Idempotency, zapLogger)

	// Outbound clients
	cardProvider := cardlink.NewProvider(cfg.Service.CardLink, zapLogger)
	invoiceProvider := invoice.NewProvider(cfg.Service.Invoice, zapLogger)
	groupClient := group.NewClient(cfg.Service.Group, zapLogger)
	notifierClient := notifier.NewClient(cfg.Service.Notifier, zapLogger)

	// Usecases
	executor := retry.NewExecutor(retry.DefaultConfig(), zapLogger)
	ledger := usecase.NewSubscriptionLedger(repos.Member, repos.Activity, cfg.Plan.PeriodDays, zapLogger)
	payments := usecase.NewPaymentService(cardProvider, invoiceProvider, repos.Session, repos.Activity,
		ledger, executor, groupClient, notifierClient, cfg.Plan, zapLogger)
	reconciler := usecase.NewReconciler(repos.Member, repos.Activity, repos.EventLedger,
		ledger, payments, groupClient, notifierClient, cfg.Scheduler.ReminderDays, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Daily reconciliation
	daily, err := scheduler.NewDaily(cfg.Scheduler.CheckTime, func(ctx context.Context, today time.Time) error {
		_, err := reconciler.RunDaily(ctx, today)
		return err
	}, nil, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	daily.Start(ctx)

	// HTTP server
	httpSrv := httpServer.NewServer(cfg, zapLogger, repos, ledger, payments)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down...")

	daily.Stop()
	if err := httpSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Server shut down successfully")
}
