package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ClauseOperator is the closed set of comparison operators a clause may use
type ClauseOperator string

const (
	OperatorEquals        ClauseOperator = "equals"
	OperatorSemverLess    ClauseOperator = "semver_less_than"
	groupOperatorAnd                     = "AND"
	groupOperatorOr                      = "OR"
)

// ConditionNode is the tagged variant for rule condition trees:
// a node is a Clause, an AndGroup, or an OrGroup.
type ConditionNode interface {
	conditionNode()
}

// Clause compares one dot-path field on the event against a literal value
type Clause struct {
	Field    string         `json:"field"`
	Operator ClauseOperator `json:"operator"`
	Value    string         `json:"value"`
}

func (Clause) conditionNode() {}

// AndGroup is true iff all children are true
type AndGroup struct {
	Clauses []ConditionNode
}

func (AndGroup) conditionNode() {}

// OrGroup is true iff any child is true
type OrGroup struct {
	Clauses []ConditionNode
}

func (OrGroup) conditionNode() {}

// ConditionTree wraps the root node and carries the wire codec. The wire
// schema is {operator:"AND"|"OR", clauses:[{field,operator,value}|group]}.
type ConditionTree struct {
	Root ConditionNode
}

// UnmarshalJSON decodes the recursive wire schema into the tagged variant
func (t *ConditionTree) UnmarshalJSON(data []byte) error {
	node, err := decodeConditionNode(data)
	if err != nil {
		return err
	}
	t.Root = node
	return nil
}

// MarshalJSON encodes the tree back into the wire schema
func (t ConditionTree) MarshalJSON() ([]byte, error) {
	if t.Root == nil {
		return []byte("null"), nil
	}
	return json.Marshal(encodeConditionNode(t.Root))
}

// rawConditionNode is the union shape used during decoding
type rawConditionNode struct {
	Operator string            `json:"operator"`
	Clauses  []json.RawMessage `json:"clauses"`
	Field    string            `json:"field"`
	Value    json.RawMessage   `json:"value"`
}

func decodeConditionNode(data []byte) (ConditionNode, error) {
	var raw rawConditionNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed condition node: %w", err)
	}

	// A node with a field is a leaf clause; everything else is a group.
	if raw.Field != "" {
		var value string
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &value); err != nil {
				// Non-string literals keep their JSON text for strict compare
				value = strings.Trim(string(raw.Value), `"`)
			}
		}
		op := ClauseOperator(raw.Operator)
		if op != OperatorEquals && op != OperatorSemverLess {
			return nil, fmt.Errorf("unknown clause operator %q", raw.Operator)
		}
		return Clause{Field: raw.Field, Operator: op, Value: value}, nil
	}

	children := make([]ConditionNode, 0, len(raw.Clauses))
	for _, childRaw := range raw.Clauses {
		child, err := decodeConditionNode(childRaw)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch strings.ToUpper(raw.Operator) {
	case groupOperatorAnd:
		return AndGroup{Clauses: children}, nil
	case groupOperatorOr:
		return OrGroup{Clauses: children}, nil
	default:
		return nil, fmt.Errorf("unknown group operator %q", raw.Operator)
	}
}

func encodeConditionNode(node ConditionNode) interface{} {
	switch n := node.(type) {
	case Clause:
		return map[string]interface{}{
			"field":    n.Field,
			"operator": string(n.Operator),
			"value":    n.Value,
		}
	case AndGroup:
		return encodeGroup(groupOperatorAnd, n.Clauses)
	case OrGroup:
		return encodeGroup(groupOperatorOr, n.Clauses)
	default:
		return nil
	}
}

func encodeGroup(operator string, children []ConditionNode) map[string]interface{} {
	encoded := make([]interface{}, 0, len(children))
	for _, child := range children {
		encoded = append(encoded, encodeConditionNode(child))
	}
	return map[string]interface{}{
		"operator": operator,
		"clauses":  encoded,
	}
}

// RuleDecision is what a rule yields when its condition tree matches
type RuleDecision struct {
	Status       VerdictStatus `json:"status"`
	Reason       string        `json:"reason"`
	AuditTrigger bool          `json:"audit_trigger"`
}

// PolicyRule is one entry in a policy snapshot's rule set. Lower priority
// numbers are evaluated first; the first matching active rule wins.
type PolicyRule struct {
	RuleID     string        `json:"rule_id"`
	Name       string        `json:"name"`
	Priority   int           `json:"priority"`
	IsActive   bool          `json:"is_active"`
	ContextID  string        `json:"context_id"`
	Conditions ConditionTree `json:"conditions"`
	Decision   RuleDecision  `json:"decision"`
}

// AppliesTo reports whether the rule's scope covers the event context.
// An empty scope on either side is treated as global.
func (r PolicyRule) AppliesTo(eventCtx EventContext) bool {
	if r.ContextID == "" || eventCtx.ContextID == "" {
		return true
	}
	return r.ContextID == eventCtx.ContextID
}
