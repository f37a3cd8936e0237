package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/internal/auth"
	"github.com/petrofield/fieldops/internal/clients"
	"github.com/petrofield/fieldops/internal/dailylogs"
	"github.com/petrofield/fieldops/internal/documents"
	"github.com/petrofield/fieldops/internal/issues"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/platform/cache"
	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/storage"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
	"github.com/petrofield/fieldops/internal/tickets"
	"github.com/petrofield/fieldops/internal/users"
	"github.com/petrofield/fieldops/jobs"
)

// Server owns the API's long-lived connections and its HTTP handler.
type Server struct {
	Handler http.Handler

	pool      *pgxpool.Pool
	redis     *redis.Client
	jobs      *jobs.Client
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// RedisOpts derives the asynq connection settings from the config.
func (c *Config) RedisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewServer connects to postgres, redis and object storage and wires every
// HTTP module.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := db.MigrateUp(cfg.PGDSN); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}

	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	rates, err := cfg.BillingRates()
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	jobClient, err := jobs.NewClient(cfg.RedisOpts())
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	inspector := asynq.NewInspector(cfg.RedisOpts())

	metrics := observability.NewMetrics()
	rbacService := rbac.NewService()
	guard := rbac.Middleware{Service: rbacService, Logger: logger}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	authService := auth.NewService(auth.NewRepository(pool), tokens, auth.NewDenylist(redisClient), logger)

	agreementService := agreements.NewService(agreements.NewRepository(pool), logger)
	ticketService := tickets.NewService(tickets.Deps{
		Repo:        tickets.NewRepository(pool),
		Links:       agreementService,
		Locker:      shared.NewLocker(redisClient),
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       shared.NewAuditLogger(pool),
		Enqueuer:    jobClient,
		Metrics:     metrics,
		Logger:      logger,
	}, tickets.Options{RejectOverdraw: cfg.LedgerRejectOverdraw, Rates: rates})

	router := NewRouter(RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Health: func(r *http.Request) error {
			if err := pool.Ping(r.Context()); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
		AuthHandler:        auth.NewHandler(logger, authService, cfg.LoginRatePerMinute),
		UsersHandler:       users.NewHandler(users.NewService(users.NewRepository(pool), logger), logger, guard),
		ClientsHandler:     clients.NewHandler(clients.NewService(clients.NewRepository(pool), logger), logger, guard),
		AgreementsHandler:  agreements.NewHandler(agreementService, logger, guard),
		DailyLogsHandler:   dailylogs.NewHandler(dailylogs.NewService(dailylogs.NewRepository(pool), logger), logger, guard),
		TicketsHandler:     tickets.NewHandler(ticketService, logger, guard),
		IssuesHandler:      issues.NewHandler(issues.NewService(issues.NewRepository(pool), logger), logger, guard),
		DocumentsHandler:   documents.NewHandler(documents.NewService(documents.NewRepository(pool), store, logger, cfg.UploadMaxBytes), logger, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	return &Server{
		Handler:   router,
		pool:      pool,
		redis:     redisClient,
		jobs:      jobClient,
		inspector: inspector,
		logger:    logger,
	}, nil
}

// Close releases every connection held by the server.
func (s *Server) Close() error {
	var errs []error
	if err := s.inspector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.jobs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.redis.Close(); err != nil {
		errs = append(errs, err)
	}
	s.pool.Close()
	return errors.Join(errs...)
}

// newObjectStore connects to minio, or falls back to process memory outside
// production when no endpoint is configured.
func newObjectStore(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.MinioEndpoint == "" {
		if cfg.IsProduction() {
			return nil, errors.New("MINIO_ENDPOINT must be set in production")
		}
		logger.Warn("MINIO_ENDPOINT not set, documents are kept in memory")
		return storage.NewMemory(), nil
	}
	return storage.NewMinio(ctx, storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	})
}
