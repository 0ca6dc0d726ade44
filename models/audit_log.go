package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionEvaluation       AuditAction = "policy_evaluation"
	AuditActionPolicyActivated  AuditAction = "policy_activated"
	AuditActionReplay           AuditAction = "decision_replay"
	AuditActionBulkReplay       AuditAction = "bulk_replay"
	AuditActionContextSwitch    AuditAction = "context_switch"
	AuditActionLogin            AuditAction = "login"
	AuditActionCreateEnterprise AuditAction = "create_enterprise"
	AuditActionCreateAgencySeat AuditAction = "create_agency_seat"
)

// AuditLog represents one append-only audit trail entry. The core writes
// entries but does not own the store.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	ContextID    *uuid.UUID      `json:"context_id,omitempty" db:"context_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "context_audit_log"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		CreatedAt:    time.Now(),
	}
}

// WithUser sets the acting user
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithContext sets the context the action was performed in
func (a *AuditLog) WithContext(contextID uuid.UUID) *AuditLog {
	a.ContextID = &contextID
	return a
}

// WithResource sets the resource acted on
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails attaches structured metadata
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	raw, err := json.Marshal(details)
	if err == nil {
		a.Details = raw
	}
	return a
}
