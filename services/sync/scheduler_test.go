package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-automation/engine/services/rules"
	"ticket-automation/engine/services/workflow"
)

func TestScheduler_InvalidExpression(t *testing.T) {
	scheduler := NewScheduler(NewReconciler(workflow.NewMemoryStore(), rules.NewMemoryStore()))

	err := scheduler.Schedule("not a cron expression")
	require.Error(t, err)
}

func TestScheduler_RunsSyncAll(t *testing.T) {
	wfStore := workflow.NewMemoryStore()
	require.NoError(t, wfStore.Upsert(context.Background(), ticketWorkflow("wf1")))
	ruleStore := rules.NewMemoryStore()

	scheduler := NewScheduler(NewReconciler(wfStore, ruleStore))
	require.NoError(t, scheduler.Schedule("@every 10ms"))

	scheduler.Start()
	defer scheduler.Stop(context.Background())

	assert.Eventually(t, func() bool {
		listed, err := ruleStore.List(context.Background())
		return err == nil && len(listed) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ErrorHandlerInvoked(t *testing.T) {
	failures := make(chan error, 1)
	scheduler := NewScheduler(
		NewReconciler(failingWorkflowSource{}, rules.NewMemoryStore()),
		WithErrorHandler(func(err error) {
			select {
			case failures <- err:
			default:
			}
		}),
	)
	require.NoError(t, scheduler.Schedule("@every 10ms"))

	scheduler.Start()
	defer scheduler.Stop(context.Background())

	select {
	case err := <-failures:
		assert.Contains(t, err.Error(), "connection refused")
	case <-time.After(2 * time.Second):
		t.Fatal("error handler was not invoked")
	}
}

func TestScheduler_StopWaitsForInflightSync(t *testing.T) {
	scheduler := NewScheduler(NewReconciler(workflow.NewMemoryStore(), rules.NewMemoryStore()))
	require.NoError(t, scheduler.Schedule("@every 10ms"))
	scheduler.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
}
