package models

import (
	"time"

	"github.com/google/uuid"
)

// ImpactLevel is the five-bucket classification of a policy change's
// effect on a historical decision.
type ImpactLevel string

const (
	ImpactNone     ImpactLevel = "none"
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// OriginalDecision summarizes the historical decision being replayed
type OriginalDecision struct {
	ActionID      uuid.UUID `json:"actionId"`
	ThreadID      uuid.UUID `json:"threadId"`
	Outcome       Outcome   `json:"outcome"`
	Confidence    float64   `json:"confidence"`
	Rationale     string    `json:"rationale"`
	PolicyVersion string    `json:"policyVersion"`
	DecisionDate  time.Time `json:"decisionDate"`
}

// ReplayedDecision summarizes the re-evaluation under the target policy
type ReplayedDecision struct {
	Outcome       Outcome `json:"outcome"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	PolicyVersion string  `json:"policyVersion"`
	RuleID        string  `json:"ruleId,omitempty"`
}

// ReplayAnalysis compares original and replayed decisions
type ReplayAnalysis struct {
	OutcomeChanged   bool        `json:"outcomeChanged"`
	ConfidenceDelta  float64     `json:"confidenceDelta"`
	PolicyChanges    []string    `json:"policyChanges"`
	ImpactAssessment ImpactLevel `json:"impactAssessment"`
}

// ReplayResult is the full outcome of replaying one decision
type ReplayResult struct {
	OriginalDecision OriginalDecision `json:"originalDecision"`
	ReplayedDecision ReplayedDecision `json:"replayedDecision"`
	Analysis         ReplayAnalysis   `json:"analysis"`
}

// ImpactDistribution is the histogram of impact levels across a bulk run
type ImpactDistribution struct {
	None     int `json:"none"`
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// Add increments the bucket for the given level
func (d *ImpactDistribution) Add(level ImpactLevel) {
	switch level {
	case ImpactNone:
		d.None++
	case ImpactLow:
		d.Low++
	case ImpactMedium:
		d.Medium++
	case ImpactHigh:
		d.High++
	case ImpactCritical:
		d.Critical++
	}
}

// BulkReplaySummary aggregates a bulk run. ProcessedDecisions below
// TotalDecisions signals filtered or failed items, not an error.
type BulkReplaySummary struct {
	TotalDecisions         int                `json:"totalDecisions"`
	ProcessedDecisions     int                `json:"processedDecisions"`
	OutcomeChanges         int                `json:"outcomeChanges"`
	AverageConfidenceDelta float64            `json:"averageConfidenceDelta"`
	ImpactDistribution     ImpactDistribution `json:"impactDistribution"`
}

// BulkReplayResult is the full outcome of a bulk policy impact analysis
type BulkReplayResult struct {
	EnterpriseID uuid.UUID         `json:"enterpriseId"`
	FromVersion  string            `json:"fromVersion"`
	ToVersion    string            `json:"toVersion"`
	Summary      BulkReplaySummary `json:"summary"`
	Details      []ReplayResult    `json:"details"`
}
