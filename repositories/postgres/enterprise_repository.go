package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap"
)

// EnterpriseRepository implements the repositories.EnterpriseRepository interface
type EnterpriseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEnterpriseRepository creates a new enterprise repository
func NewEnterpriseRepository(db *DB, logger *zap.Logger) repositories.EnterpriseRepository {
	return &EnterpriseRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new enterprise
func (r *EnterpriseRepository) Create(ctx context.Context, enterprise *models.Enterprise) error {
	query := `
		INSERT INTO enterprises (id, name, slug, type, subscription_tier, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		enterprise.ID,
		enterprise.Name,
		enterprise.Slug,
		enterprise.Type,
		enterprise.SubscriptionTier,
		nullableJSON(enterprise.Settings),
		enterprise.CreatedAt,
		enterprise.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create enterprise: %w", err)
	}

	r.logger.Debug("enterprise created", zap.String("id", enterprise.ID.String()))
	return nil
}

// GetByID retrieves an enterprise by ID
func (r *EnterpriseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Enterprise, error) {
	query := `
		SELECT id, name, slug, type, subscription_tier, settings, created_at, updated_at
		FROM enterprises
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanEnterprise(executor.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves an enterprise by slug
func (r *EnterpriseRepository) GetBySlug(ctx context.Context, slug string) (*models.Enterprise, error) {
	query := `
		SELECT id, name, slug, type, subscription_tier, settings, created_at, updated_at
		FROM enterprises
		WHERE slug = $1
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanEnterprise(executor.QueryRowContext(ctx, query, slug))
}

// List retrieves enterprises with pagination
func (r *EnterpriseRepository) List(ctx context.Context, limit, offset int) ([]*models.Enterprise, error) {
	query := `
		SELECT id, name, slug, type, subscription_tier, settings, created_at, updated_at
		FROM enterprises
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query enterprises: %w", err)
	}
	defer rows.Close()

	var enterprises []*models.Enterprise
	for rows.Next() {
		enterprise := &models.Enterprise{}
		var settings sql.NullString
		err := rows.Scan(
			&enterprise.ID,
			&enterprise.Name,
			&enterprise.Slug,
			&enterprise.Type,
			&enterprise.SubscriptionTier,
			&settings,
			&enterprise.CreatedAt,
			&enterprise.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enterprise: %w", err)
		}
		if settings.Valid {
			enterprise.Settings = []byte(settings.String)
		}
		enterprises = append(enterprises, enterprise)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enterprise rows: %w", err)
	}

	return enterprises, nil
}

func (r *EnterpriseRepository) scanEnterprise(row *sql.Row) (*models.Enterprise, error) {
	enterprise := &models.Enterprise{}
	var settings sql.NullString

	err := row.Scan(
		&enterprise.ID,
		&enterprise.Name,
		&enterprise.Slug,
		&enterprise.Type,
		&enterprise.SubscriptionTier,
		&settings,
		&enterprise.CreatedAt,
		&enterprise.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get enterprise: %w", err)
	}

	if settings.Valid {
		enterprise.Settings = []byte(settings.String)
	}
	return enterprise, nil
}

// nullableJSON converts empty JSON payloads to SQL NULL
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
