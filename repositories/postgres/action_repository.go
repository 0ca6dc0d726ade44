package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap"
)

// ActionRepository implements the repositories.ActionRepository interface.
// The backing table is append-only; nothing here updates or deletes.
type ActionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewActionRepository creates a new governance action repository
func NewActionRepository(db *DB, logger *zap.Logger) repositories.ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a new decision record
func (r *ActionRepository) Insert(ctx context.Context, action *models.GovernanceAction) error {
	var snapshot interface{}
	if action.ContextSnapshot != nil {
		raw, err := json.Marshal(action.ContextSnapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal context snapshot: %w", err)
		}
		snapshot = string(raw)
	}

	query := `
		INSERT INTO governance_actions (id, thread_id, enterprise_id, action_type, rationale, context_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		action.ID,
		action.ThreadID,
		action.EnterpriseID,
		action.ActionType,
		action.Rationale,
		snapshot,
		action.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert governance action: %w", err)
	}

	r.logger.Debug("governance action recorded",
		zap.String("id", action.ID.String()),
		zap.String("action_type", string(action.ActionType)))
	return nil
}

// GetByID retrieves a decision record by ID
func (r *ActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GovernanceAction, error) {
	query := `
		SELECT id, thread_id, enterprise_id, action_type, rationale, context_snapshot, created_at
		FROM governance_actions
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	action := &models.GovernanceAction{}
	var rationale, snapshot sql.NullString

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&action.ID,
		&action.ThreadID,
		&action.EnterpriseID,
		&action.ActionType,
		&rationale,
		&snapshot,
		&action.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get governance action: %w", err)
	}

	action.Rationale = rationale.String
	if snapshot.Valid {
		var contextSnapshot models.ContextSnapshot
		if err := json.Unmarshal([]byte(snapshot.String), &contextSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context snapshot: %w", err)
		}
		action.ContextSnapshot = &contextSnapshot
	}

	return action, nil
}

// ListForReplay retrieves snapshotted decision records matching the filter.
// Records without a context snapshot are excluded here; version filtering
// happens in the orchestrator because the version lives inside the JSONB.
func (r *ActionRepository) ListForReplay(ctx context.Context, filter repositories.ActionFilter) ([]*models.GovernanceAction, error) {
	actionTypes := make([]string, 0, len(filter.ActionTypes))
	for _, actionType := range filter.ActionTypes {
		actionTypes = append(actionTypes, string(actionType))
	}

	query := `
		SELECT id, thread_id, enterprise_id, action_type, rationale, context_snapshot, created_at
		FROM governance_actions
		WHERE enterprise_id = $1
			AND action_type = ANY($2)
			AND context_snapshot IS NOT NULL
			AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query,
		filter.EnterpriseID,
		pq.Array(actionTypes),
		filter.Since,
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query governance actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.GovernanceAction
	for rows.Next() {
		action := &models.GovernanceAction{}
		var rationale, snapshot sql.NullString

		err := rows.Scan(
			&action.ID,
			&action.ThreadID,
			&action.EnterpriseID,
			&action.ActionType,
			&rationale,
			&snapshot,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan governance action: %w", err)
		}

		action.Rationale = rationale.String
		if snapshot.Valid {
			var contextSnapshot models.ContextSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &contextSnapshot); err != nil {
				return nil, fmt.Errorf("failed to unmarshal context snapshot: %w", err)
			}
			action.ContextSnapshot = &contextSnapshot
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating governance action rows: %w", err)
	}

	return actions, nil
}
