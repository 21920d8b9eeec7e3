package workflow

import (
	"fmt"

	"ticket-automation/engine/services/rules"
)

// defaultTerminalStatus is used when an end node carries no label.
const defaultTerminalStatus = "closed"

// ActionMapper maps a transition's destination node to the actions of the
// compiled rule. The destination mapping is a product decision that evolves
// independently of the reconciler's invariants, so it is pluggable.
type ActionMapper func(dest Node) []rules.Action

// DefaultActionMapper implements the standard destination mapping: a state
// node becomes a set_status to its label, an end node a terminal set_status,
// and an action node forwards its payload verbatim.
func DefaultActionMapper(dest Node) []rules.Action {
	switch dest.Type {
	case NodeTypeState:
		return []rules.Action{setStatus(dest.Data.Label)}
	case NodeTypeEnd:
		label := dest.Data.Label
		if label == "" {
			label = defaultTerminalStatus
		}
		return []rules.Action{setStatus(label)}
	case NodeTypeAction:
		if dest.Data.Action == nil {
			return []rules.Action{}
		}
		return []rules.Action{*dest.Data.Action}
	default:
		return []rules.Action{}
	}
}

// Decomposer compiles a workflow graph into a flat list of automation rules,
// one per transition. It is defined only for workflows that have passed
// validation and are enabled.
type Decomposer struct {
	mapper ActionMapper
}

// NewDecomposer creates a Decomposer with the default destination mapping.
func NewDecomposer() *Decomposer {
	return &Decomposer{mapper: DefaultActionMapper}
}

// NewDecomposerWithMapper creates a Decomposer with a custom destination
// mapping.
func NewDecomposerWithMapper(mapper ActionMapper) *Decomposer {
	return &Decomposer{mapper: mapper}
}

// Compile produces one rule per transition. The mapping is deterministic and
// injective in transition id: recompiling the same workflow version always
// yields the same rule ids.
func (d *Decomposer) Compile(wf *Workflow) []rules.Rule {
	g := newGraph(wf)

	compiled := make([]rules.Rule, 0, len(wf.Transitions))
	for _, t := range wf.Transitions {
		source, _ := g.node(t.FromNodeID)
		dest, _ := g.node(t.ToNodeID)

		compiled = append(compiled, rules.Rule{
			ID:         rules.DerivedRuleID(wf.ID, t.ID),
			Name:       ruleName(wf, t, source, dest),
			Type:       rules.TypeAutomation,
			Enabled:    wf.Enabled,
			Conditions: sourceConditions(source),
			Actions:    d.mapper(dest),
		})
	}
	return compiled
}

// sourceConditions derives the rule's condition group from the transition's
// source node: trigger nodes match on the injected event, state nodes on the
// current status. Other source types compile to a vacuously true group.
func sourceConditions(source Node) rules.ConditionGroup {
	group := rules.ConditionGroup{All: []rules.Condition{}, Any: []rules.Condition{}}
	switch source.Type {
	case NodeTypeTrigger:
		group.All = append(group.All, rules.Condition{
			Field: "event", Operator: rules.OpEquals, Value: source.Data.Event,
		})
	case NodeTypeState:
		group.All = append(group.All, rules.Condition{
			Field: "status", Operator: rules.OpEquals, Value: source.Data.Label,
		})
	}
	return group
}

func ruleName(wf *Workflow, t Transition, source, dest Node) string {
	label := t.Label
	if label == "" {
		label = fmt.Sprintf("%s to %s", nodeTitle(source), nodeTitle(dest))
	}
	return fmt.Sprintf("%s: %s", wf.Name, label)
}

func nodeTitle(n Node) string {
	if n.Data.Label != "" {
		return n.Data.Label
	}
	if n.Data.Event != "" {
		return n.Data.Event
	}
	return n.ID
}

func setStatus(status string) rules.Action {
	return rules.Action{Type: rules.ActionSetStatus, Params: map[string]any{"status": status}}
}
