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

	"github.com/dmehra2102/prod-golang-projects/medlink/config"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/events"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/fanout"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	v1 "github.com/dmehra2102/prod-golang-projects/medlink/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/repository/postgres"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/tracer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "medlink",
		Short:        "House-call doctor dispatch service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create schemas, tables and indexes in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			return database.Migrate(db, log)
		},
	}
}

// tokenCmd issues a token for local testing. Identity is managed elsewhere.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			user, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			claims := &domain.Claims{UserID: uuid.New(), Name: name, Role: domain.Role(role)}
			if user != "" {
				if claims.UserID, err = uuid.Parse(user); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			tok, err := auth.NewJWTManager(cfg.JWT).Issue(claims)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s\naccess_token=%s\nexpires_at=%s\n",
				claims.UserID, tok.AccessToken, tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("role", string(domain.RoleDoctor), "Role of the user (admin, doctor, patient)")
	cmd.Flags().String("user", "", "User id (random when empty)")
	cmd.Flags().String("name", "", "Display name")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	log = log.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Environment))
	return cfg, log, nil
}

type repositories struct {
	requests servicerequest.Repository
	presence presence.Repository
	reviews  review.Repository
	audit    service.AuditRepository
}

func openStorage(cfg *config.Config, log *zap.Logger) (*repositories, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return &repositories{
			requests: memory.NewRequestRepository(),
			presence: memory.NewPresenceRepository(),
			reviews:  memory.NewReviewRepository(),
			audit:    memory.NewAuditRepository(),
		}, nil
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &repositories{
		requests: postgres.NewRequestRepository(db),
		presence: postgres.NewPresenceRepository(db),
		reviews:  postgres.NewReviewRepository(db),
		audit:    postgres.NewAuditRepository(db),
	}, nil
}

func runServer() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("initialising tracer: %w", err)
	}

	m := metrics.NewCollector("medlink", metrics.NewProcessRegistry())

	repos, err := openStorage(cfg, log)
	if err != nil {
		return err
	}

	var sink events.Sink = events.NopSink{}
	if cfg.Events.Enabled {
		sink = events.NewKafkaSink(cfg.Events, log)
	}
	publisher := events.NewPublisher(sink, cfg.Events.BufferSize, m, log)
	audit := service.NewAuditService(repos.audit, m, log)

	index := geo.NewIndex()
	notifier := fanout.NewNotifier(fanout.NewHub(), cfg.Dispatch.SubscriberBuffer, m, log)

	requests := service.NewRequestService(repos.requests, index, notifier, audit, publisher, m, cfg.Dispatch, log)
	assignment := service.NewAssignmentService(requests, repos.presence, index, notifier, audit, publisher, m, log)
	lifecycle := service.NewLifecycleService(requests, repos.presence, index, notifier, audit, publisher, m, log)
	reviews := service.NewReviewService(requests, repos.reviews, audit, publisher, m, log)
	presenceSvc := service.NewPresenceService(repos.presence, index, notifier, requests, log)
	streams := service.NewStreamService(requests, repos.presence, notifier, log)

	if err := presenceSvc.WarmIndex(ctx); err != nil {
		return fmt.Errorf("warming geo index: %w", err)
	}

	router := v1.NewRouter(cfg, auth.NewJWTManager(cfg.JWT), v1.Handlers{
		Requests: v1.NewRequestHandler(requests, assignment, lifecycle, reviews, log),
		Doctors:  v1.NewDoctorHandler(presenceSvc),
		Streams:  v1.NewStreamHandler(streams, cfg.CORS.AllowedOrigins, log),
	}, m, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	audit.Shutdown()
	publisher.Shutdown()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}
