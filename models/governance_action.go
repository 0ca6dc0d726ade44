package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the normalized decision outcome used when comparing a
// historical decision to its replay.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeEscalated Outcome = "escalated"
	OutcomePending   Outcome = "pending"
)

// ActionType is the closed set of raw action literals a governance action
// may carry. New literals must be added here and to the Outcome mapping.
type ActionType string

const (
	ActionApprove          ActionType = "approve"
	ActionReject           ActionType = "reject"
	ActionEscalate         ActionType = "escalate"
	ActionHumanApprove     ActionType = "HumanApproveDecision"
	ActionHumanBlock       ActionType = "HumanBlockDecision"
	ActionAgentAutoApprove ActionType = "AgentAutoApprove"
	ActionAgentAutoBlock   ActionType = "AgentAutoBlock"
	ActionDraftDecision    ActionType = "draft_decision"
	ActionAutoClear        ActionType = "auto_clear"
)

// DecisionActionTypes lists every action type considered a decision,
// in the order used as the default bulk-replay whitelist.
var DecisionActionTypes = []ActionType{
	ActionApprove,
	ActionReject,
	ActionEscalate,
	ActionHumanApprove,
	ActionHumanBlock,
	ActionAgentAutoApprove,
	ActionAgentAutoBlock,
	ActionDraftDecision,
	ActionAutoClear,
}

// Outcome is the total mapping from raw action literals to normalized
// outcomes. Literals outside the enum map conservatively to pending.
func (a ActionType) Outcome() Outcome {
	switch a {
	case ActionApprove, ActionHumanApprove, ActionAgentAutoApprove, ActionAutoClear:
		return OutcomeApproved
	case ActionReject, ActionHumanBlock, ActionAgentAutoBlock:
		return OutcomeBlocked
	case ActionEscalate:
		return OutcomeEscalated
	case ActionDraftDecision:
		return OutcomePending
	default:
		return OutcomePending
	}
}

// PolicyState captures which rule set was in effect at decision time
type PolicyState struct {
	SnapshotID uuid.UUID    `json:"snapshot_id"`
	Version    string       `json:"version"`
	Rules      []PolicyRule `json:"rules"`
}

// ActiveRuleCount returns how many rules in the captured state are active
func (p PolicyState) ActiveRuleCount() int {
	count := 0
	for _, rule := range p.Rules {
		if rule.IsActive {
			count++
		}
	}
	return count
}

// ExternalContext carries signals recorded alongside the decision that the
// core does not own, such as an upstream confidence score.
type ExternalContext struct {
	Confidence *float64 `json:"confidence,omitempty"`
}

// ContextSnapshot freezes everything needed to deterministically re-run an
// evaluation: the event, the policy state, and external signals. Replay
// substitutes only the policy state and holds the rest fixed.
type ContextSnapshot struct {
	Event           ToolUsageEvent  `json:"event"`
	PolicyState     PolicyState     `json:"policy_state"`
	ExternalContext ExternalContext `json:"external_context"`
}

// GovernanceAction is one append-only decision record. Actions without a
// context snapshot predate snapshotting and cannot be replayed.
type GovernanceAction struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	ThreadID        uuid.UUID        `json:"thread_id" db:"thread_id"`
	EnterpriseID    uuid.UUID        `json:"enterprise_id" db:"enterprise_id"`
	ActionType      ActionType       `json:"action_type" db:"action_type"`
	Rationale       string           `json:"rationale" db:"rationale"`
	ContextSnapshot *ContextSnapshot `json:"context_snapshot,omitempty" db:"context_snapshot"` // JSONB
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the GovernanceAction model
func (GovernanceAction) TableName() string {
	return "governance_actions"
}

// NewGovernanceAction creates a new decision record
func NewGovernanceAction(threadID, enterpriseID uuid.UUID, actionType ActionType, rationale string) *GovernanceAction {
	return &GovernanceAction{
		ID:           uuid.New(),
		ThreadID:     threadID,
		EnterpriseID: enterpriseID,
		ActionType:   actionType,
		Rationale:    rationale,
		CreatedAt:    time.Now(),
	}
}

// WithSnapshot attaches the frozen decision context
func (a *GovernanceAction) WithSnapshot(snapshot ContextSnapshot) *GovernanceAction {
	a.ContextSnapshot = &snapshot
	return a
}
