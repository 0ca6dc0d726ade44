package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/verahq/governance-core/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Enterprises table
		CREATE TABLE IF NOT EXISTS enterprises (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			type VARCHAR(50) NOT NULL,
			subscription_tier VARCHAR(50) NOT NULL DEFAULT 'standard',
			settings JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Agency seats table
		CREATE TABLE IF NOT EXISTS agency_seats (
			id UUID PRIMARY KEY,
			enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL,
			description TEXT,
			seat_type VARCHAR(50) NOT NULL DEFAULT 'standard',
			settings JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (enterprise_id, slug)
		);

		-- Users table
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- User contexts table
		CREATE TABLE IF NOT EXISTS user_contexts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
			agency_seat_id UUID REFERENCES agency_seats(id) ON DELETE CASCADE,
			role VARCHAR(100) NOT NULL,
			permissions JSONB NOT NULL DEFAULT '[]',
			is_default BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true,
			last_accessed TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS one_default_context_per_user
			ON user_contexts (user_id) WHERE is_default;

		-- Role permissions table
		CREATE TABLE IF NOT EXISTS role_permissions (
			role VARCHAR(100) NOT NULL,
			resource VARCHAR(100) NOT NULL,
			action VARCHAR(100) NOT NULL,
			is_granted BOOLEAN NOT NULL DEFAULT true,
			PRIMARY KEY (role, resource, action)
		);

		-- Policy snapshots table
		CREATE TABLE IF NOT EXISTS policy_snapshots (
			id UUID PRIMARY KEY,
			enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
			version VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			rules JSONB NOT NULL DEFAULT '[]',
			activated_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (enterprise_id, version)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS one_active_snapshot_per_enterprise
			ON policy_snapshots (enterprise_id) WHERE status = 'active';

		-- Governance actions table (append-only decision log)
		CREATE TABLE IF NOT EXISTS governance_actions (
			id UUID PRIMARY KEY,
			thread_id UUID NOT NULL,
			enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
			action_type VARCHAR(100) NOT NULL,
			rationale TEXT,
			context_snapshot JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS governance_actions_replay_idx
			ON governance_actions (enterprise_id, created_at);

		-- Context audit log table (append-only)
		CREATE TABLE IF NOT EXISTS context_audit_log (
			id UUID PRIMARY KEY,
			user_id UUID,
			context_id UUID,
			action VARCHAR(100) NOT NULL,
			resource_type VARCHAR(100) NOT NULL,
			resource_id UUID,
			details JSONB,
			ip_address VARCHAR(64),
			user_agent TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized")
	return nil
}
