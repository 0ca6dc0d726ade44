package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/verahq/governance-core/models"
	"go.uber.org/zap"
)

// fallbackReason explains the fail-closed verdict returned when no rule
// matched the event.
const fallbackReason = "no matching rule; manual review required"

// Engine evaluates tool usage events against versioned rule sets. It is
// pure: same event and rules always produce the same verdict, and rule
// matching errors degrade to a conservative non-match instead of failing.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a new evaluation engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate classifies an event against a rule set. Rules are filtered to
// active ones whose scope covers the event, then evaluated in ascending
// priority order; the first matching rule's decision wins. When nothing
// matches the verdict is RequiresReview, never Approved.
func (e *Engine) Evaluate(event models.ToolUsageEvent, rules []models.PolicyRule) models.Verdict {
	applicable := make([]models.PolicyRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive && rule.AppliesTo(event.Context) {
			applicable = append(applicable, rule)
		}
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority < applicable[j].Priority
	})

	doc := event.Document()
	for _, rule := range applicable {
		if e.evalNode(rule.Conditions.Root, doc) {
			e.logger.Debug("rule matched",
				zap.String("rule_id", rule.RuleID),
				zap.String("status", string(rule.Decision.Status)),
				zap.Int("priority", rule.Priority))
			return models.Verdict{
				Status:           rule.Decision.Status,
				Reason:           rule.Decision.Reason,
				RuleID:           rule.RuleID,
				PolicySnapshotID: event.Context.PolicySnapshotID,
			}
		}
	}

	e.logger.Debug("no rule matched, falling back to review",
		zap.String("tool", event.Tool.Name),
		zap.Int("rules_considered", len(applicable)))
	return models.Verdict{
		Status:           models.VerdictRequiresReview,
		Reason:           fallbackReason,
		PolicySnapshotID: event.Context.PolicySnapshotID,
	}
}

// evalNode recursively evaluates a condition tree node against the event
// document. A nil node never matches.
func (e *Engine) evalNode(node models.ConditionNode, doc map[string]interface{}) bool {
	switch n := node.(type) {
	case models.Clause:
		return e.evalClause(n, doc)
	case models.AndGroup:
		for _, child := range n.Clauses {
			if !e.evalNode(child, doc) {
				return false
			}
		}
		return len(n.Clauses) > 0
	case models.OrGroup:
		for _, child := range n.Clauses {
			if e.evalNode(child, doc) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// evalClause resolves the clause's dot-path field on the event document and
// applies its operator. A missing field is false, not an error.
func (e *Engine) evalClause(clause models.Clause, doc map[string]interface{}) bool {
	value, ok := resolveField(doc, clause.Field)
	if !ok {
		return false
	}

	switch clause.Operator {
	case models.OperatorEquals:
		return value == clause.Value
	case models.OperatorSemverLess:
		cmp, err := compareVersions(value, clause.Value)
		if err != nil {
			// Malformed versions never satisfy less-than.
			e.logger.Warn("version comparison failed, treating as not-less-than",
				zap.String("field", clause.Field),
				zap.String("event_value", value),
				zap.String("rule_value", clause.Value),
				zap.Error(err))
			return false
		}
		return cmp < 0
	default:
		return false
	}
}

// resolveField walks a dot-separated path through nested JSON objects and
// returns the leaf as a string.
func resolveField(doc map[string]interface{}, path string) (string, bool) {
	var current interface{} = doc
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = obj[segment]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case float64:
		// JSON numbers compare by their canonical text form.
		text := fmt.Sprintf("%g", v)
		return text, true
	case bool:
		return fmt.Sprintf("%t", v), true
	default:
		return "", false
	}
}

// ValidateRules checks a rule set for structural problems before it is
// persisted into a snapshot: unknown decision statuses and duplicate
// priorities within the same scope are rejected.
func ValidateRules(rules []models.PolicyRule) error {
	seen := make(map[string]string) // scope+priority -> rule_id
	for _, rule := range rules {
		if rule.RuleID == "" {
			return fmt.Errorf("rule %q is missing a rule_id", rule.Name)
		}
		switch rule.Decision.Status {
		case models.VerdictApproved, models.VerdictProhibited, models.VerdictRequiresReview:
		default:
			return fmt.Errorf("rule %q has unknown decision status %q", rule.RuleID, rule.Decision.Status)
		}
		if rule.Conditions.Root == nil {
			return fmt.Errorf("rule %q has no conditions", rule.RuleID)
		}

		key := fmt.Sprintf("%s/%d", rule.ContextID, rule.Priority)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("rules %q and %q share priority %d in the same scope", other, rule.RuleID, rule.Priority)
		}
		seen[key] = rule.RuleID
	}
	return nil
}
