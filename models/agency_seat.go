package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AgencySeat represents an agency workspace nested under an enterprise.
// External agencies act on behalf of the enterprise through seats.
type AgencySeat struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	EnterpriseID uuid.UUID       `json:"enterprise_id" db:"enterprise_id"`
	Name         string          `json:"name" db:"name"`
	Slug         string          `json:"slug" db:"slug"`
	Description  string          `json:"description,omitempty" db:"description"`
	SeatType     string          `json:"seat_type" db:"seat_type"`
	Settings     json.RawMessage `json:"settings,omitempty" db:"settings"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the AgencySeat model
func (AgencySeat) TableName() string {
	return "agency_seats"
}

// NewAgencySeat creates a new AgencySeat instance
func NewAgencySeat(enterpriseID uuid.UUID, name, slug string) *AgencySeat {
	now := time.Now()
	return &AgencySeat{
		ID:           uuid.New(),
		EnterpriseID: enterpriseID,
		Name:         name,
		Slug:         slug,
		SeatType:     "standard",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
