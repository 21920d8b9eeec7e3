package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-automation/engine/services/rules"
	"ticket-automation/engine/services/workflow"
)

func ticketWorkflow(id string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:   id,
		Name: "Ticket Lifecycle",
		Nodes: map[string]workflow.Node{
			"n-trigger": {ID: "n-trigger", Type: workflow.NodeTypeTrigger, Data: workflow.NodeData{Event: "create"}},
			"n-open":    {ID: "n-open", Type: workflow.NodeTypeState, Data: workflow.NodeData{Label: "Open"}},
			"n-end":     {ID: "n-end", Type: workflow.NodeTypeEnd, Data: workflow.NodeData{Label: "Resolved"}},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", FromNodeID: "n-trigger", ToNodeID: "n-open"},
			{ID: "t2", FromNodeID: "n-open", ToNodeID: "n-end", Label: "Close"},
		},
		EntryNodeID: "n-trigger",
		Enabled:     true,
	}
}

func manualRule(id string) rules.Rule {
	return rules.Rule{
		ID:      id,
		Name:    "manual escalation",
		Type:    rules.TypeAutomation,
		Enabled: true,
		Conditions: rules.ConditionGroup{
			All: []rules.Condition{{Field: "priority", Operator: rules.OpEquals, Value: "high"}},
		},
		Actions: []rules.Action{{Type: rules.ActionAddTag, Params: map[string]any{"tag": "escalated"}}},
	}
}

func newFixture(t *testing.T, workflows ...*workflow.Workflow) (*Reconciler, *rules.MemoryStore) {
	t.Helper()
	wfStore := workflow.NewMemoryStore()
	for _, wf := range workflows {
		require.NoError(t, wfStore.Upsert(context.Background(), wf))
	}
	ruleStore := rules.NewMemoryStore()
	return NewReconciler(wfStore, ruleStore), ruleStore
}

func ruleIDs(t *testing.T, store rules.Store) []string {
	t.Helper()
	listed, err := store.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(listed))
	for _, rule := range listed {
		ids = append(ids, rule.ID)
	}
	return ids
}

func TestSyncAll_CompilesActiveWorkflows(t *testing.T) {
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wf1"))

	result, err := reconciler.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RuleCount)

	assert.ElementsMatch(t, []string{"wf-wf1-t1", "wf-wf1-t2"}, ruleIDs(t, ruleStore))
}

func TestSyncAll_PreservesManualRules(t *testing.T) {
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wf1"))
	_, err := ruleStore.Add(context.Background(), manualRule("m1"))
	require.NoError(t, err)

	result, err := reconciler.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RuleCount, "ruleCount counts derived rules only")

	assert.ElementsMatch(t, []string{"m1", "wf-wf1-t1", "wf-wf1-t2"}, ruleIDs(t, ruleStore))
}

func TestSyncAll_ConservationWithNoActiveWorkflows(t *testing.T) {
	reconciler, ruleStore := newFixture(t)
	ctx := context.Background()
	_, err := ruleStore.Add(ctx, manualRule("m1"))
	require.NoError(t, err)

	// Stale derived rules from a deleted workflow get swept away.
	require.NoError(t, ruleStore.ReplaceAll(ctx, []rules.Rule{manualRule("m1"), {ID: "wf-gone-t1"}}))

	result, err := reconciler.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RuleCount)
	assert.Equal(t, []string{"m1"}, ruleIDs(t, ruleStore))
}

func TestSyncAll_SkipsInvalidWorkflow(t *testing.T) {
	valid := ticketWorkflow("wf1")
	invalid := ticketWorkflow("wf2")
	invalid.EntryNodeID = "nope"

	reconciler, ruleStore := newFixture(t, valid, invalid)

	result, err := reconciler.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RuleCount)
	assert.ElementsMatch(t, []string{"wf-wf1-t1", "wf-wf1-t2"}, ruleIDs(t, ruleStore))
}

func TestSyncOne_Idempotent(t *testing.T) {
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wf1"))
	ctx := context.Background()

	first, err := reconciler.SyncOne(ctx, "wf1", true)
	require.NoError(t, err)
	afterFirst, err := ruleStore.List(ctx)
	require.NoError(t, err)

	second, err := reconciler.SyncOne(ctx, "wf1", true)
	require.NoError(t, err)
	afterSecond, err := ruleStore.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, first.RuleCount)
	assert.Equal(t, afterFirst, afterSecond, "replace semantics, never append semantics")
}

func TestSyncOne_Isolation(t *testing.T) {
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wfA"), ticketWorkflow("wfB"))
	ctx := context.Background()
	_, err := ruleStore.Add(ctx, manualRule("m1"))
	require.NoError(t, err)

	_, err = reconciler.SyncAll(ctx)
	require.NoError(t, err)

	result, err := reconciler.SyncOne(ctx, "wfA", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RuleCount)

	// Exactly wfA's derived rules are gone; m1 and wfB's rules survive.
	assert.ElementsMatch(t, []string{"m1", "wf-wfB-t1", "wf-wfB-t2"}, ruleIDs(t, ruleStore))
}

func TestSyncOne_MissingWorkflowDegradesToZero(t *testing.T) {
	reconciler, ruleStore := newFixture(t)
	ctx := context.Background()
	require.NoError(t, ruleStore.ReplaceAll(ctx, []rules.Rule{{ID: "wf-ghost-t1"}}))

	result, err := reconciler.SyncOne(ctx, "ghost", true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RuleCount)
	assert.Empty(t, ruleIDs(t, ruleStore))
}

func TestSyncOne_DisabledStoredWorkflowYieldsZero(t *testing.T) {
	wf := ticketWorkflow("wf1")
	wf.Enabled = false
	reconciler, ruleStore := newFixture(t, wf)

	result, err := reconciler.SyncOne(context.Background(), "wf1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RuleCount)
	assert.Empty(t, ruleIDs(t, ruleStore))
}

func TestSyncOne_InvalidWorkflowYieldsZero(t *testing.T) {
	wf := ticketWorkflow("wf1")
	wf.Transitions = append(wf.Transitions, workflow.Transition{ID: "t3", FromNodeID: "ghost", ToNodeID: "n-end"})
	reconciler, ruleStore := newFixture(t, wf)

	result, err := reconciler.SyncOne(context.Background(), "wf1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RuleCount)
	assert.Empty(t, ruleIDs(t, ruleStore))
}

func TestSyncOne_NamespacePrefixIsExact(t *testing.T) {
	// wf1 must not sweep wf10's rules: the prefix includes the trailing dash
	// and the full workflow id.
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wf1"), ticketWorkflow("wf10"))
	ctx := context.Background()

	_, err := reconciler.SyncAll(ctx)
	require.NoError(t, err)

	_, err = reconciler.SyncOne(ctx, "wf1", false)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"wf-wf10-t1", "wf-wf10-t2"}, ruleIDs(t, ruleStore))
}

// heldPrefixStore stalls the derived-rule swap for one namespace until
// released, exposing any window in which a concurrent sync could be lost.
type heldPrefixStore struct {
	*rules.MemoryStore
	holdPrefix string
	proceed    chan struct{}
}

func (s *heldPrefixStore) ReplacePrefix(ctx context.Context, prefix string, fresh []rules.Rule) error {
	if prefix == s.holdPrefix {
		<-s.proceed
	}
	return s.MemoryStore.ReplacePrefix(ctx, prefix, fresh)
}

func TestSyncOne_ConcurrentDisjointWorkflows(t *testing.T) {
	ctx := context.Background()
	wfStore := workflow.NewMemoryStore()
	require.NoError(t, wfStore.Upsert(ctx, ticketWorkflow("wfA")))
	require.NoError(t, wfStore.Upsert(ctx, ticketWorkflow("wfB")))

	ruleStore := &heldPrefixStore{
		MemoryStore: rules.NewMemoryStore(),
		holdPrefix:  rules.DerivedIDPrefix("wfA"),
		proceed:     make(chan struct{}),
	}
	_, err := ruleStore.Add(ctx, manualRule("m1"))
	require.NoError(t, err)

	reconciler := NewReconciler(wfStore, ruleStore)

	done := make(chan error, 1)
	go func() {
		_, err := reconciler.SyncOne(ctx, "wfA", true)
		done <- err
	}()

	// wfB's sync runs to completion while wfA's swap is still in flight.
	_, err = reconciler.SyncOne(ctx, "wfB", true)
	require.NoError(t, err)

	close(ruleStore.proceed)
	require.NoError(t, <-done)

	// Both namespaces survive: each sync touched only its own wf-{id}- rules.
	assert.ElementsMatch(t,
		[]string{"m1", "wf-wfA-t1", "wf-wfA-t2", "wf-wfB-t1", "wf-wfB-t2"},
		ruleIDs(t, ruleStore))
}

type failingWorkflowSource struct{}

func (failingWorkflowSource) Get(context.Context, string) (*workflow.Workflow, error) {
	return nil, errors.New("connection refused")
}

func (failingWorkflowSource) ListActive(context.Context) ([]workflow.Workflow, error) {
	return nil, errors.New("connection refused")
}

func TestSync_StoreErrorsPropagate(t *testing.T) {
	reconciler := NewReconciler(failingWorkflowSource{}, rules.NewMemoryStore())

	_, err := reconciler.SyncAll(context.Background())
	require.Error(t, err)

	_, err = reconciler.SyncOne(context.Background(), "wf1", true)
	require.Error(t, err)
}

func TestEndToEnd_CompileThenExecute(t *testing.T) {
	reconciler, ruleStore := newFixture(t, ticketWorkflow("wf1"))
	ctx := context.Background()

	_, err := reconciler.SyncAll(ctx)
	require.NoError(t, err)

	engine := rules.NewEngine(ruleStore)
	report, err := engine.ExecuteRules(ctx, rules.ExecuteRequest{
		Ticket:      rules.TicketContext{"id": "tk1", "status": "Open"},
		Event:       "update",
		TriggerType: rules.TypeAutomation,
	})
	require.NoError(t, err)

	matched := map[string]bool{}
	for _, result := range report.Results {
		matched[result.RuleID] = result.Matched
	}
	assert.False(t, matched["wf-wf1-t1"], "trigger rule requires event=create")
	assert.True(t, matched["wf-wf1-t2"], "state rule fires on status=Open")

	for _, result := range report.Results {
		if result.RuleID == "wf-wf1-t2" {
			assert.Equal(t, "Resolved", result.Changes["status"])
		}
	}
}
