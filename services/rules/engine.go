package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Engine evaluates rules against ticket snapshots. All computation is pure;
// the only I/O is reading the rule list from the store.
type Engine struct {
	store Store
}

// NewEngine creates an Engine backed by the given rule store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// EvaluateRule evaluates one rule against a ticket snapshot. The rule's
// Enabled flag is intentionally ignored so callers can force-test a rule
// regardless of its activation state. When the rule does not match, no
// actions run and the change/descriptor fields stay empty — but condition
// evaluation errors are still reported, so force-testing a broken rule
// explains what is wrong with it instead of returning a silent non-match.
func (e *Engine) EvaluateRule(rule Rule, ticket TicketContext) RuleEvaluationResult {
	matched, condErrors := MatchConditions(rule.Conditions, ticket)
	if condErrors == nil {
		condErrors = []string{}
	}

	if !matched {
		return RuleEvaluationResult{
			Matched:       false,
			Changes:       map[string]any{},
			Notifications: []Notification{},
			Webhooks:      []Webhook{},
			Errors:        condErrors,
		}
	}

	applied := ApplyActions(rule.Actions, ticket)
	return RuleEvaluationResult{
		Matched:       true,
		Changes:       applied.Changes,
		Notifications: applied.Notifications,
		Webhooks:      applied.Webhooks,
		Errors:        append(condErrors, applied.Errors...),
	}
}

// ExecuteRequest describes one batch execution run. DryRun is advisory: the
// engine never persists or dispatches anything either way; the flag exists
// so callers can decide whether to apply the returned changes.
type ExecuteRequest struct {
	Ticket      TicketContext
	Event       string
	TriggerType string
	DryRun      bool
}

// ExecuteRules evaluates every enabled rule of the requested type against
// the ticket snapshot, with the event injected as ticket.event so
// event-keyed trigger conditions can match. Rules are evaluated
// independently in store order; no rule observes another rule's computed
// changes within the same call.
func (e *Engine) ExecuteRules(ctx context.Context, req ExecuteRequest) (*ExecuteReport, error) {
	ruleList, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	snapshot := cloneTicket(req.Ticket)
	snapshot["event"] = req.Event

	results := make([]RuleExecution, 0, len(ruleList))
	for _, rule := range ruleList {
		if !rule.Enabled || rule.Type != req.TriggerType {
			continue
		}
		evaluated := e.EvaluateRule(rule, snapshot)
		results = append(results, RuleExecution{
			RuleID:  rule.ID,
			Matched: evaluated.Matched,
			Changes: evaluated.Changes,
			Errors:  evaluated.Errors,
		})
	}

	return &ExecuteReport{
		ExecutionID: uuid.New().String(),
		Results:     results,
	}, nil
}

// cloneTicket shallow-copies the snapshot so event injection never mutates
// the caller's ticket.
func cloneTicket(ticket TicketContext) TicketContext {
	clone := make(TicketContext, len(ticket)+1)
	for k, v := range ticket {
		clone[k] = v
	}
	return clone
}
