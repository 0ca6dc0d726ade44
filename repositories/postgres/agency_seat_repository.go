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

// AgencySeatRepository implements the repositories.AgencySeatRepository interface
type AgencySeatRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAgencySeatRepository creates a new agency seat repository
func NewAgencySeatRepository(db *DB, logger *zap.Logger) repositories.AgencySeatRepository {
	return &AgencySeatRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new agency seat
func (r *AgencySeatRepository) Create(ctx context.Context, seat *models.AgencySeat) error {
	query := `
		INSERT INTO agency_seats (id, enterprise_id, name, slug, description, seat_type, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		seat.ID,
		seat.EnterpriseID,
		seat.Name,
		seat.Slug,
		seat.Description,
		seat.SeatType,
		nullableJSON(seat.Settings),
		seat.CreatedAt,
		seat.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create agency seat: %w", err)
	}

	r.logger.Debug("agency seat created",
		zap.String("id", seat.ID.String()),
		zap.String("enterprise_id", seat.EnterpriseID.String()))
	return nil
}

// GetByID retrieves a seat by ID
func (r *AgencySeatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AgencySeat, error) {
	query := `
		SELECT id, enterprise_id, name, slug, description, seat_type, settings, created_at, updated_at
		FROM agency_seats
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	seat := &models.AgencySeat{}
	var description, settings sql.NullString

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&seat.ID,
		&seat.EnterpriseID,
		&seat.Name,
		&seat.Slug,
		&description,
		&seat.SeatType,
		&settings,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agency seat: %w", err)
	}

	seat.Description = description.String
	if settings.Valid {
		seat.Settings = []byte(settings.String)
	}
	return seat, nil
}

// GetByEnterpriseID retrieves all seats of an enterprise
func (r *AgencySeatRepository) GetByEnterpriseID(ctx context.Context, enterpriseID uuid.UUID) ([]*models.AgencySeat, error) {
	query := `
		SELECT id, enterprise_id, name, slug, description, seat_type, settings, created_at, updated_at
		FROM agency_seats
		WHERE enterprise_id = $1
		ORDER BY created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, enterpriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agency seats: %w", err)
	}
	defer rows.Close()

	var seats []*models.AgencySeat
	for rows.Next() {
		seat := &models.AgencySeat{}
		var description, settings sql.NullString
		err := rows.Scan(
			&seat.ID,
			&seat.EnterpriseID,
			&seat.Name,
			&seat.Slug,
			&description,
			&seat.SeatType,
			&settings,
			&seat.CreatedAt,
			&seat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agency seat: %w", err)
		}
		seat.Description = description.String
		if settings.Valid {
			seat.Settings = []byte(settings.String)
		}
		seats = append(seats, seat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agency seat rows: %w", err)
	}

	return seats, nil
}
