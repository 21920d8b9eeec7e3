package sync

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-automation/engine/services/rules"
	"ticket-automation/engine/services/workflow"
)

// WorkflowSource is the read-only slice of the workflow store the reconciler
// needs.
type WorkflowSource interface {
	Get(ctx context.Context, id string) (*workflow.Workflow, error)
	ListActive(ctx context.Context) ([]workflow.Workflow, error)
}

// Reconciler keeps the derived subset of the rule store in sync with the
// workflow definitions. It is the only component allowed to write derived
// rules; manual rules (ids outside the wf- namespace) are never created,
// modified, or deleted here. Every write is a single atomic swap: a full
// ReplaceAll for SyncAll, a namespace-scoped ReplacePrefix for SyncOne.
type Reconciler struct {
	workflows  WorkflowSource
	rules      rules.Store
	decomposer *workflow.Decomposer
}

// NewReconciler creates a Reconciler over the given stores using the default
// decomposer.
func NewReconciler(workflows WorkflowSource, ruleStore rules.Store) *Reconciler {
	return &Reconciler{
		workflows:  workflows,
		rules:      ruleStore,
		decomposer: workflow.NewDecomposer(),
	}
}

// NewReconcilerWithDecomposer creates a Reconciler with a custom decomposer.
func NewReconcilerWithDecomposer(workflows WorkflowSource, ruleStore rules.Store, d *workflow.Decomposer) *Reconciler {
	return &Reconciler{workflows: workflows, rules: ruleStore, decomposer: d}
}

// Result reports how many derived rules a sync produced.
type Result struct {
	RuleCount int `json:"ruleCount"`
}

// SyncAll recompiles every enabled workflow and atomically replaces the
// store's contents with the manual rules plus the fresh derived set.
// Workflows that fail validation are skipped with a warning rather than
// failing the run. RuleCount counts derived rules only.
func (r *Reconciler) SyncAll(ctx context.Context) (Result, error) {
	active, err := r.workflows.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list active workflows: %w", err)
	}

	desired := []rules.Rule{}
	for i := range active {
		wf := &active[i]
		if report := workflow.Validate(wf); !report.Valid {
			slog.Warn("skipping invalid workflow during sync", "workflow", wf.ID, "errors", report.Errors)
			continue
		}
		desired = append(desired, r.decomposer.Compile(wf)...)
	}

	current, err := r.rules.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list rules: %w", err)
	}

	next := manualOnly(current)
	next = append(next, desired...)
	if err := r.rules.ReplaceAll(ctx, next); err != nil {
		return Result{}, fmt.Errorf("replace rules: %w", err)
	}

	slog.Debug("synced all workflows", "workflows", len(active), "derivedRules", len(desired))
	return Result{RuleCount: len(desired)}, nil
}

// SyncOne replaces the derived rules of a single workflow, leaving manual
// rules and other workflows' derived rules untouched. The swap is a single
// scoped ReplacePrefix on the wf-{id}- namespace, so SyncOne calls for
// different workflow ids are safe to run concurrently. When the workflow is
// disabled, missing, or invalid, its derived rules are simply removed and
// RuleCount is zero — a dangling reference degrades to "no rules for this
// workflow" rather than an error. Calling SyncOne twice in a row yields an
// identical rule set both times.
func (r *Reconciler) SyncOne(ctx context.Context, workflowID string, enabled bool) (Result, error) {
	fresh := []rules.Rule{}
	if enabled {
		var err error
		fresh, err = r.compileOne(ctx, workflowID)
		if err != nil {
			return Result{}, err
		}
	}

	if err := r.rules.ReplacePrefix(ctx, rules.DerivedIDPrefix(workflowID), fresh); err != nil {
		return Result{}, fmt.Errorf("replace derived rules: %w", err)
	}

	return Result{RuleCount: len(fresh)}, nil
}

// compileOne fetches and compiles one workflow, returning an empty rule list
// when it is missing, disabled, or structurally invalid.
func (r *Reconciler) compileOne(ctx context.Context, workflowID string) ([]rules.Rule, error) {
	wf, err := r.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		slog.Warn("workflow not found during sync", "workflow", workflowID)
		return []rules.Rule{}, nil
	}
	if !wf.Enabled {
		return []rules.Rule{}, nil
	}
	if report := workflow.Validate(wf); !report.Valid {
		slog.Warn("skipping invalid workflow during sync", "workflow", wf.ID, "errors", report.Errors)
		return []rules.Rule{}, nil
	}
	return r.decomposer.Compile(wf), nil
}

func manualOnly(ruleList []rules.Rule) []rules.Rule {
	manual := []rules.Rule{}
	for _, rule := range ruleList {
		if !rules.IsDerivedID(rule.ID) {
			manual = append(manual, rule)
		}
	}
	return manual
}
