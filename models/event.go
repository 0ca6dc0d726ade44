package models

import (
	"encoding/json"
	"time"
)

// ToolRef identifies the AI tool an event concerns
type ToolRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ActorRef identifies who performed the tool usage
type ActorRef struct {
	Role string `json:"role"`
}

// ActionRef describes what was done with the tool
type ActionRef struct {
	Type string `json:"type"`
	Note string `json:"note,omitempty"`
}

// EventContext scopes an event to a tenant and the policy snapshot in
// effect when it was recorded.
type EventContext struct {
	TenantID         string `json:"tenantId"`
	PolicySnapshotID string `json:"policySnapshotId"`
	ContextID        string `json:"contextId,omitempty"`
}

// ToolUsageEvent is the immutable record of one AI tool usage, created at
// evaluation time and evaluated against a rule set.
type ToolUsageEvent struct {
	Tool      ToolRef      `json:"tool"`
	Actor     ActorRef     `json:"actor"`
	Action    ActionRef    `json:"action"`
	Context   EventContext `json:"context"`
	Timestamp time.Time    `json:"ts"`
}

// Document returns the event as a generic JSON document for dot-path field
// resolution by rule clauses.
func (e ToolUsageEvent) Document() map[string]interface{} {
	raw, err := json.Marshal(e)
	if err != nil {
		return map[string]interface{}{}
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]interface{}{}
	}
	return doc
}

// VerdictStatus is the closed set of evaluation outcomes
type VerdictStatus string

const (
	VerdictApproved       VerdictStatus = "Approved"
	VerdictProhibited     VerdictStatus = "Prohibited"
	VerdictRequiresReview VerdictStatus = "RequiresReview"
)

// Verdict is the outcome of evaluating one event against a rule set.
// RuleID is empty when the fail-closed fallback path was taken.
type Verdict struct {
	Status           VerdictStatus `json:"status"`
	Reason           string        `json:"reason"`
	RuleID           string        `json:"rule_id,omitempty"`
	PolicySnapshotID string        `json:"policySnapshotId,omitempty"`
}

// Outcome maps the verdict status onto the normalized decision outcome
// used by replay comparison.
func (v Verdict) Outcome() Outcome {
	switch v.Status {
	case VerdictApproved:
		return OutcomeApproved
	case VerdictProhibited:
		return OutcomeBlocked
	default:
		return OutcomeEscalated
	}
}
