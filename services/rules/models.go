package rules

import "strings"

// Rule types. Trigger rules fire on ticket events, automation rules on state
// evaluation, SLA rules on deadline checks.
const (
	TypeTrigger    = "trigger"
	TypeAutomation = "automation"
	TypeSLA        = "sla"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpIn          = "in"
	OpGreaterThan = "gt"
	OpLessThan    = "lt"
	OpExists      = "exists"
)

// Action types.
const (
	ActionSetStatus   = "set_status"
	ActionSetPriority = "set_priority"
	ActionAssign      = "assign"
	ActionAddTag      = "add_tag"
	ActionRemoveTag   = "remove_tag"
	ActionNotify      = "notify"
	ActionWebhook     = "webhook"
)

// Rule is a single automation rule: a condition tree evaluated against a
// ticket snapshot, and the actions applied when it matches.
type Rule struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Enabled    bool           `json:"enabled"`
	Conditions ConditionGroup `json:"conditions"`
	Actions    []Action       `json:"actions"`
}

// ConditionGroup combines an AND group and an OR group. An empty group is
// vacuously true, so either half can be omitted.
type ConditionGroup struct {
	All []Condition `json:"all"`
	Any []Condition `json:"any"`
}

// Condition compares one field of the ticket snapshot against a value.
// Field is a dotted path into the snapshot.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Action describes a single side effect: a field change, a notification, or
// a webhook call. Params hold the type-specific parameters.
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// TicketContext is the observable state of a ticket used as evaluation
// input. It must carry an "id" entry; it is never mutated by the engine.
type TicketContext map[string]any

// Notification is a pending notification descriptor. The engine never
// delivers it; dispatch belongs to the caller.
type Notification struct {
	Channel   string `json:"channel"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// Webhook is a pending webhook call descriptor.
type Webhook struct {
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload"`
}

// ApplyResult is the outcome of applying an action list to a ticket.
// Changes maps ticket fields to their computed new values.
type ApplyResult struct {
	Changes       map[string]any `json:"changes"`
	Notifications []Notification `json:"notifications"`
	Webhooks      []Webhook      `json:"webhooks"`
	Errors        []string       `json:"errors"`
}

// RuleEvaluationResult is the outcome of evaluating a single rule.
type RuleEvaluationResult struct {
	Matched       bool           `json:"matched"`
	Changes       map[string]any `json:"changes"`
	Notifications []Notification `json:"notifications"`
	Webhooks      []Webhook      `json:"webhooks"`
	Errors        []string       `json:"errors"`
}

// RuleExecution is one rule's entry in a batch execution report.
// Notifications and webhooks are intentionally omitted here; they are only
// surfaced through the single-rule evaluation call.
type RuleExecution struct {
	RuleID  string         `json:"ruleId"`
	Matched bool           `json:"matched"`
	Changes map[string]any `json:"changes"`
	Errors  []string       `json:"errors"`
}

// ExecuteReport is the result of a batch execution run.
type ExecuteReport struct {
	ExecutionID string          `json:"executionId"`
	Results     []RuleExecution `json:"results"`
}

// Patch is a partial rule update. Nil fields are left unchanged.
type Patch struct {
	Name       *string         `json:"name,omitempty"`
	Type       *string         `json:"type,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Conditions *ConditionGroup `json:"conditions,omitempty"`
	Actions    *[]Action       `json:"actions,omitempty"`
}

const derivedIDPrefix = "wf-"

// DerivedRuleID builds the reserved id of a rule compiled from a workflow
// transition. Rules in this namespace are owned by the reconciler.
func DerivedRuleID(workflowID, transitionID string) string {
	return derivedIDPrefix + workflowID + "-" + transitionID
}

// DerivedIDPrefix returns the id prefix covering every rule derived from the
// given workflow.
func DerivedIDPrefix(workflowID string) string {
	return derivedIDPrefix + workflowID + "-"
}

// IsDerivedID reports whether an id belongs to the reconciler-owned
// namespace. Anything outside it is a manual rule.
func IsDerivedID(id string) bool {
	return strings.HasPrefix(id, derivedIDPrefix)
}
