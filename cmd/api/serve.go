package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/adapters/issuetracker"
	"github.com/spec-kit/ticket-orchestrator/internal/adapters/notification"
	httptransport "github.com/spec-kit/ticket-orchestrator/internal/api/http"
	"github.com/spec-kit/ticket-orchestrator/internal/api/http/handlers"
	"github.com/spec-kit/ticket-orchestrator/internal/auth"
	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/orchestrator"
	"github.com/spec-kit/ticket-orchestrator/internal/persistence"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	"github.com/spec-kit/ticket-orchestrator/internal/service"
	"github.com/spec-kit/ticket-orchestrator/internal/worker"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and integration orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.SetupTracing(ctx, cfg.Tracing, cfg.App, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		historyRepo = repository.NewTicketHistoryRepository(pg.PoolHandle())
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}

	var guard orchestrator.Guard = orchestrator.NewMemoryGuard(cfg.Orchestration.GuardTTL())
	if redis.Enabled() {
		guard = orchestrator.NewRedisGuard(redis.Client, cfg.Orchestration.GuardTTL())
	}

	metrics := observability.NewMetrics()
	tracker := issuetracker.New(cfg.IssueTracker, nil, logger)
	notifier := notification.New(cfg.Notification, cfg.Frontend, nil, logger)
	logger.Info("integrations configured",
		zap.Bool("issue_tracker", tracker.Enabled()),
		zap.Bool("notification", notifier.Enabled()))

	dispatcher := events.NewInMemoryDispatcher()
	orch := orchestrator.New(orchestrator.Dependencies{
		Tickets:  ticketRepo,
		History:  historyRepo,
		Issues:   tracker,
		Notifier: notifier,
		Guard:    guard,
		Logger:   logger,
		Metrics:  metrics,
	})
	worker.StartIntegrationWorker(orch, dispatcher)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		HistoryRepo:     historyRepo,
		Dispatcher:      dispatcher,
		Logger:          logger,
		DefaultPriority: cfg.Tickets.DefaultPriority,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	app := httptransport.NewApp(cfg.App.Name, httptransport.AppDependencies{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		Routes: httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
			Tickets:        handlers.NewTicketsHandler(ticketService),
			AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Enabled),
		},
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator did not stop in time; abandoning in-flight integrations", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}
