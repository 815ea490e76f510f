package evr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavemcp/wavemcp/internal/task"
)

// A plan bound to an unready EVR cannot gate-pass;
// recording a pass run then retrying succeeds.
func TestPlanGate_BlocksOnUnreadyEVR(t *testing.T) {
	tk := &task.Task{
		EVRs: []task.EVR{{ID: "evr-1", Status: task.EVRUnknown}},
	}
	p := &task.Plan{ID: "plan-A", EVRBindings: []string{"evr-1"}}

	ok, pending := PlanGate(tk, p, false)
	assert.False(t, ok)
	require.Len(t, pending, 1)
	assert.Equal(t, "evr-1", pending[0].EVRID)

	tk.EVRByID("evr-1").RecordRun(task.Run{Status: task.EVRPass, Timestamp: time.Now()})
	ok, pending = PlanGate(tk, p, false)
	assert.True(t, ok)
	assert.Empty(t, pending)
}

func TestPlanGate_MissingEVRIsPending(t *testing.T) {
	tk := &task.Task{}
	p := &task.Plan{ID: "plan-A", EVRBindings: []string{"evr-missing"}}
	ok, pending := PlanGate(tk, p, false)
	assert.False(t, ok)
	require.Len(t, pending, 1)
}

// Skip without a reason blocks task completion;
// adding notes and retrying succeeds.
func TestTaskGate_SkipWithoutReasonBlocks(t *testing.T) {
	tk := &task.Task{
		EVRs: []task.EVR{{ID: "evr-2", Status: task.EVRSkip}},
	}
	ok, pending, _ := TaskGate(tk, false)
	assert.False(t, ok)
	require.Len(t, pending, 1)
	assert.Equal(t, ReasonNeedReasonSkip, pending[0].Reason)

	tk.EVRByID("evr-2").RecordRun(task.Run{Status: task.EVRSkip, Notes: "known flake", Timestamp: time.Now()})
	ok, pending, _ = TaskGate(tk, false)
	assert.True(t, ok)
	assert.Empty(t, pending)
}

func TestTaskGate_AllReadyPasses(t *testing.T) {
	tk := &task.Task{
		EVRs: []task.EVR{
			{ID: "evr-1", Status: task.EVRPass},
			{ID: "evr-2", Status: task.EVRSkip, Notes: "reason"},
		},
	}
	ok, pending, summary := TaskGate(tk, false)
	assert.True(t, ok)
	assert.Empty(t, pending)
	assert.Equal(t, 2, summary.Total)
}

func TestRuntimeReady_StaticClassAlwaysReadyOnSinglePass(t *testing.T) {
	e := &task.EVR{Class: task.ClassStatic, Status: task.EVRPass, Runs: []task.Run{{Status: task.EVRPass}}}
	assert.True(t, RuntimeReady(e, nil, true))
}

func TestRuntimeReady_RuntimeClassNeedsSecondLookOrRerunAfterPlanStart(t *testing.T) {
	planStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &task.Plan{InProgressAt: &planStart}

	stalePass := planStart.Add(-time.Hour)
	e := &task.EVR{
		Class: task.ClassRuntime, Status: task.EVRPass,
		Runs: []task.Run{{Status: task.EVRPass, Timestamp: stalePass}},
	}
	assert.False(t, RuntimeReady(e, p, true), "a single pass run predating the plan's start is stale")

	freshPass := planStart.Add(time.Hour)
	e.Runs[0].Timestamp = freshPass
	assert.True(t, RuntimeReady(e, p, true))
}

func TestRuntimeReady_TwoRunsSatisfiesWithoutPlanContext(t *testing.T) {
	e := &task.EVR{
		Class: task.ClassRuntime, Status: task.EVRPass,
		Runs: []task.Run{{Status: task.EVRFail}, {Status: task.EVRPass}},
	}
	assert.True(t, RuntimeReady(e, nil, true))
}

func TestRuntimeReady_FlagDisabledSkipsFreshnessCheck(t *testing.T) {
	e := &task.EVR{Class: task.ClassRuntime, Status: task.EVRPass, Runs: []task.Run{{Status: task.EVRPass}}}
	assert.True(t, RuntimeReady(e, nil, false))
}

func TestEVRForNode_ReturnsBindings(t *testing.T) {
	p := &task.Plan{EVRBindings: []string{"evr-1", "evr-2"}}
	assert.Equal(t, []string{"evr-1", "evr-2"}, EVRForNode(p))
}
