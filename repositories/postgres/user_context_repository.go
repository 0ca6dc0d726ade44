package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap"
)

// UserContextRepository implements the repositories.UserContextRepository interface
type UserContextRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserContextRepository creates a new user context repository
func NewUserContextRepository(db *DB, logger *zap.Logger) repositories.UserContextRepository {
	return &UserContextRepository{
		db:     db,
		logger: logger,
	}
}

const userContextColumns = `id, user_id, enterprise_id, agency_seat_id, role, permissions, is_default, is_active, last_accessed, created_at, updated_at`

// Create creates a new user context
func (r *UserContextRepository) Create(ctx context.Context, userContext *models.UserContext) error {
	permissions, err := json.Marshal(userContext.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO user_contexts (id, user_id, enterprise_id, agency_seat_id, role, permissions, is_default, is_active, last_accessed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		userContext.ID,
		userContext.UserID,
		userContext.EnterpriseID,
		userContext.AgencySeatID,
		userContext.Role,
		string(permissions),
		userContext.IsDefault,
		userContext.IsActive,
		userContext.LastAccessed,
		userContext.CreatedAt,
		userContext.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user context: %w", err)
	}

	r.logger.Debug("user context created",
		zap.String("id", userContext.ID.String()),
		zap.String("user_id", userContext.UserID.String()))
	return nil
}

// GetByID retrieves a context by ID regardless of owner
func (r *UserContextRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UserContext, error) {
	query := `SELECT ` + userContextColumns + ` FROM user_contexts WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	return r.scanContext(executor.QueryRowContext(ctx, query, id))
}

// GetByUserID retrieves all active contexts of a user, default first
func (r *UserContextRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UserContext, error) {
	query := `
		SELECT ` + userContextColumns + `
		FROM user_contexts
		WHERE user_id = $1 AND is_active = true
		ORDER BY is_default DESC, last_accessed DESC NULLS LAST
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*models.UserContext
	for rows.Next() {
		userContext, err := r.scanContextRow(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, userContext)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user context rows: %w", err)
	}

	return contexts, nil
}

// GetDefault retrieves the user's default active context
func (r *UserContextRepository) GetDefault(ctx context.Context, userID uuid.UUID) (*models.UserContext, error) {
	query := `
		SELECT ` + userContextColumns + `
		FROM user_contexts
		WHERE user_id = $1 AND is_default = true AND is_active = true
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanContext(executor.QueryRowContext(ctx, query, userID))
}

// SetDefault atomically clears the user's previous default and marks the
// given context as default. Runs as one statement so concurrent callers
// cannot leave two defaults behind.
func (r *UserContextRepository) SetDefault(ctx context.Context, userID, contextID uuid.UUID) error {
	query := `
		UPDATE user_contexts
		SET is_default = (id = $2), updated_at = NOW()
		WHERE user_id = $1 AND (is_default = true OR id = $2)
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, contextID)
	if err != nil {
		return fmt.Errorf("failed to set default context: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("default context set",
		zap.String("user_id", userID.String()),
		zap.String("context_id", contextID.String()))
	return nil
}

// TouchLastAccessed stamps the context's last access time
func (r *UserContextRepository) TouchLastAccessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE user_contexts SET last_accessed = NOW() WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to touch context: %w", err)
	}
	return nil
}

// Deactivate soft-deactivates a context
func (r *UserContextRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE user_contexts
		SET is_active = false, is_default = false, updated_at = NOW()
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate context: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("context deactivated", zap.String("id", id.String()))
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *UserContextRepository) scanContext(row *sql.Row) (*models.UserContext, error) {
	userContext, err := r.scanContextRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return userContext, nil
}

func (r *UserContextRepository) scanContextRow(scanner rowScanner) (*models.UserContext, error) {
	userContext := &models.UserContext{}
	var permissions string
	var lastAccessed sql.NullTime

	err := scanner.Scan(
		&userContext.ID,
		&userContext.UserID,
		&userContext.EnterpriseID,
		&userContext.AgencySeatID,
		&userContext.Role,
		&permissions,
		&userContext.IsDefault,
		&userContext.IsActive,
		&lastAccessed,
		&userContext.CreatedAt,
		&userContext.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user context: %w", err)
	}

	if err := json.Unmarshal([]byte(permissions), &userContext.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		userContext.LastAccessed = &t
	}

	return userContext, nil
}
