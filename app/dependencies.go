package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verahq/governance-core/config"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/repositories/postgres"
	"github.com/verahq/governance-core/services/audit"
	"github.com/verahq/governance-core/services/authz"
	"github.com/verahq/governance-core/services/evaluation"
	"github.com/verahq/governance-core/services/policy"
	"github.com/verahq/governance-core/services/replay"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Services
	Engine    *evaluation.Engine
	AuditSvc  *audit.AuditService
	PolicySvc *policy.Service
	ReplaySvc *replay.Service
	AuthzSvc  *authz.Service

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware

	// closed when Close runs; stops the cache cleanup worker
	stopCh chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		stopCh: make(chan struct{}),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

// initServices wires the service layer bottom-up: engine, audit, then the
// services that depend on them.
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.Engine = evaluation.NewEngine(d.Logger)

	d.AuditSvc = audit.NewAuditService(d.Repos.Actions, d.Repos.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.AuditSvc.Start(); err != nil {
		return fmt.Errorf("failed to start audit workers: %w", err)
	}

	d.PolicySvc = policy.NewService(d.Repos.Snapshots, d.TxManager, d.Engine, d.AuditSvc, d.Logger)

	d.ReplaySvc = replay.NewService(d.Repos.Actions, d.Repos.Snapshots, d.Engine, d.AuditSvc, replay.Config{
		Concurrency:   cfg.Replay.Concurrency,
		Timeout:       cfg.Replay.Timeout,
		DefaultLimit:  cfg.Replay.DefaultLimit,
		DefaultWindow: time.Duration(cfg.Replay.TimeWindowDays) * 24 * time.Hour,
	}, d.Logger)

	d.AuthzSvc = authz.NewService(d.Repos, d.TxManager, d.AuditSvc, authz.Config{
		TokenSecret:   cfg.Auth.JWTSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		TokenIssuer:   cfg.Auth.TokenIssuer,
		BcryptCost:    cfg.Auth.BcryptCost,
		CacheSize:     cfg.Auth.CacheSize,
		CacheTTL:      cfg.Auth.CacheTTL,
		CleanupPeriod: cfg.Auth.CleanupPeriod,
	}, d.Logger)
	d.AuthzSvc.StartCacheCleanup(cfg.Auth.CleanupPeriod, d.stopCh)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.AuthzSvc.Issuer(), d.AuthzSvc, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	close(d.stopCh)

	// Drain the audit buffer before closing its database connection
	if d.AuditSvc != nil {
		if err := d.AuditSvc.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit workers: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
