package models

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotStatus is the lifecycle state of a policy snapshot
type SnapshotStatus string

const (
	SnapshotStatusDraft   SnapshotStatus = "draft"
	SnapshotStatusActive  SnapshotStatus = "active"
	SnapshotStatusRetired SnapshotStatus = "retired"
)

// PolicySnapshot is an immutable, versioned rule set. At any instant
// exactly one snapshot per enterprise is active; explicit version or id
// lookups bypass the active pointer so replay can reach retired versions.
type PolicySnapshot struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	EnterpriseID uuid.UUID      `json:"enterprise_id" db:"enterprise_id"`
	Version      string         `json:"version" db:"version"`
	Status       SnapshotStatus `json:"status" db:"status"`
	Rules        []PolicyRule   `json:"rules" db:"rules"` // JSONB
	ActivatedAt  *time.Time     `json:"activated_at,omitempty" db:"activated_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the PolicySnapshot model
func (PolicySnapshot) TableName() string {
	return "policy_snapshots"
}

// NewPolicySnapshot creates a new draft snapshot
func NewPolicySnapshot(enterpriseID uuid.UUID, version string, rules []PolicyRule) *PolicySnapshot {
	now := time.Now()
	return &PolicySnapshot{
		ID:           uuid.New(),
		EnterpriseID: enterpriseID,
		Version:      version,
		Status:       SnapshotStatusDraft,
		Rules:        rules,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ActiveRuleCount returns how many of the snapshot's rules are active
func (s *PolicySnapshot) ActiveRuleCount() int {
	count := 0
	for _, rule := range s.Rules {
		if rule.IsActive {
			count++
		}
	}
	return count
}
