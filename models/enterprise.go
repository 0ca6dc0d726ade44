package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnterpriseType distinguishes the kinds of tenants on the platform
type EnterpriseType string

const (
	EnterpriseTypeBrand  EnterpriseType = "brand"
	EnterpriseTypeAgency EnterpriseType = "agency"
)

// Enterprise represents a top-level tenant in the governance hierarchy
type Enterprise struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Slug             string          `json:"slug" db:"slug"` // URL-friendly identifier
	Type             EnterpriseType  `json:"type" db:"type"`
	SubscriptionTier string          `json:"subscription_tier" db:"subscription_tier"`
	Settings         json.RawMessage `json:"settings,omitempty" db:"settings"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Enterprise model
func (Enterprise) TableName() string {
	return "enterprises"
}

// NewEnterprise creates a new Enterprise instance
func NewEnterprise(name, slug string, entType EnterpriseType) *Enterprise {
	now := time.Now()
	return &Enterprise{
		ID:               uuid.New(),
		Name:             name,
		Slug:             slug,
		Type:             entType,
		SubscriptionTier: "standard",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
