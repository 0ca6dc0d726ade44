package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap"
)

// SnapshotRepository implements the repositories.SnapshotRepository interface
type SnapshotRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new policy snapshot repository
func NewSnapshotRepository(db *DB, logger *zap.Logger) repositories.SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

const snapshotColumns = `id, enterprise_id, version, status, rules, activated_at, created_at, updated_at`

// Create creates a new (draft) snapshot
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.PolicySnapshot) error {
	rules, err := json.Marshal(snapshot.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		INSERT INTO policy_snapshots (id, enterprise_id, version, status, rules, activated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.EnterpriseID,
		snapshot.Version,
		snapshot.Status,
		string(rules),
		snapshot.ActivatedAt,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create policy snapshot: %w", err)
	}

	r.logger.Debug("policy snapshot created",
		zap.String("id", snapshot.ID.String()),
		zap.String("version", snapshot.Version))
	return nil
}

// GetByID retrieves a snapshot by ID regardless of status
func (r *SnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PolicySnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM policy_snapshots WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	return r.scanSnapshot(executor.QueryRowContext(ctx, query, id))
}

// GetActive retrieves the enterprise's single active snapshot
func (r *SnapshotRepository) GetActive(ctx context.Context, enterpriseID uuid.UUID) (*models.PolicySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM policy_snapshots
		WHERE enterprise_id = $1 AND status = 'active'
		ORDER BY activated_at DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanSnapshot(executor.QueryRowContext(ctx, query, enterpriseID))
}

// GetByVersion retrieves a snapshot by explicit version, bypassing the
// active pointer so replay can reach retired versions
func (r *SnapshotRepository) GetByVersion(ctx context.Context, enterpriseID uuid.UUID, version string) (*models.PolicySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM policy_snapshots
		WHERE enterprise_id = $1 AND version = $2
	`

	executor := GetExecutor(ctx, r.db)
	return r.scanSnapshot(executor.QueryRowContext(ctx, query, enterpriseID, version))
}

// Activate retires the currently active snapshot and activates the given
// one. Both statements run against the context executor, so when called
// inside a transaction the transition is atomic and readers never observe
// two active snapshots.
func (r *SnapshotRepository) Activate(ctx context.Context, enterpriseID, snapshotID uuid.UUID, at time.Time) error {
	executor := GetExecutor(ctx, r.db)

	retire := `
		UPDATE policy_snapshots
		SET status = 'retired', updated_at = $2
		WHERE enterprise_id = $1 AND status = 'active'
	`
	if _, err := executor.ExecContext(ctx, retire, enterpriseID, at); err != nil {
		return fmt.Errorf("failed to retire active snapshot: %w", err)
	}

	activate := `
		UPDATE policy_snapshots
		SET status = 'active', activated_at = $2, updated_at = $2
		WHERE id = $1 AND enterprise_id = $3
	`
	result, err := executor.ExecContext(ctx, activate, snapshotID, at, enterpriseID)
	if err != nil {
		return fmt.Errorf("failed to activate snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("policy snapshot activated",
		zap.String("id", snapshotID.String()),
		zap.String("enterprise_id", enterpriseID.String()))
	return nil
}

func (r *SnapshotRepository) scanSnapshot(row *sql.Row) (*models.PolicySnapshot, error) {
	snapshot := &models.PolicySnapshot{}
	var rules string
	var activatedAt sql.NullTime

	err := row.Scan(
		&snapshot.ID,
		&snapshot.EnterpriseID,
		&snapshot.Version,
		&snapshot.Status,
		&rules,
		&activatedAt,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get policy snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(rules), &snapshot.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		snapshot.ActivatedAt = &t
	}

	return snapshot, nil
}
