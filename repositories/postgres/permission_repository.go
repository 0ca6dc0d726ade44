package postgres

import (
	"context"
	"fmt"

	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap"
)

// PermissionRepository implements the repositories.PermissionRepository interface
type PermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new role permission repository
func NewPermissionRepository(db *DB, logger *zap.Logger) repositories.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// GetByRole retrieves the granted permissions for a role. An unknown role
// yields an empty slice, not an error.
func (r *PermissionRepository) GetByRole(ctx context.Context, role string) ([]models.Permission, error) {
	query := `
		SELECT resource, action
		FROM role_permissions
		WHERE role = $1 AND is_granted = true
		ORDER BY resource, action
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	permissions := []models.Permission{}
	for rows.Next() {
		var permission models.Permission
		if err := rows.Scan(&permission.Resource, &permission.Action); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role permission rows: %w", err)
	}

	return permissions, nil
}
