package models

import (
	"time"

	"github.com/google/uuid"
)

// ContextType identifies the level of the hierarchy a context binds to
type ContextType string

const (
	ContextTypeEnterprise ContextType = "enterprise"
	ContextTypeAgencySeat ContextType = "agencySeat"
)

// UserContext binds a user to one enterprise (and optionally one nested
// agency seat) with a role and a permission list. A user may hold many
// contexts; exactly one carries IsDefault. Contexts are soft-deactivated,
// never hard-deleted.
type UserContext struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	UserID       uuid.UUID    `json:"user_id" db:"user_id"`
	EnterpriseID uuid.UUID    `json:"enterprise_id" db:"enterprise_id"`
	AgencySeatID *uuid.UUID   `json:"agency_seat_id,omitempty" db:"agency_seat_id"`
	Role         string       `json:"role" db:"role"`
	Permissions  []Permission `json:"permissions" db:"permissions"` // JSONB
	IsDefault    bool         `json:"is_default" db:"is_default"`
	IsActive     bool         `json:"is_active" db:"is_active"`
	LastAccessed *time.Time   `json:"last_accessed,omitempty" db:"last_accessed"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UserContext model
func (UserContext) TableName() string {
	return "user_contexts"
}

// NewUserContext creates a new active UserContext instance
func NewUserContext(userID, enterpriseID uuid.UUID, role string, permissions []Permission) *UserContext {
	now := time.Now()
	return &UserContext{
		ID:           uuid.New(),
		UserID:       userID,
		EnterpriseID: enterpriseID,
		Role:         role,
		Permissions:  permissions,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithSeat narrows the context to an agency seat
func (c *UserContext) WithSeat(seatID uuid.UUID) *UserContext {
	c.AgencySeatID = &seatID
	return c
}

// Type returns the hierarchy level this context binds to
func (c *UserContext) Type() ContextType {
	if c.AgencySeatID != nil {
		return ContextTypeAgencySeat
	}
	return ContextTypeEnterprise
}
