package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/task"
)

func TestDetect_IdenticalInputsEmitNothing(t *testing.T) {
	tk := &task.Task{
		Title: "X",
		Plans: []task.Plan{{ID: "plan-1", Description: "one", Status: task.StatusToDo}},
	}
	pp := panel.ParsedPanel{
		Title: "X",
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "one", Status: task.StatusToDo}},
	}
	d := Detect(pp, tk, nil, "")
	assert.Empty(t, d.ContentChanges)
	assert.Empty(t, d.StatusChanges)
	assert.Empty(t, d.Conflicts)
}

// A pure status edit on the panel produces a pending
// status change and no content change, and is never written back.
func TestDetect_StatusIsolation(t *testing.T) {
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "same", Status: task.StatusToDo}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "same", Status: task.StatusCompleted}},
	}
	d := Detect(pp, tk, nil, "")
	require.Len(t, d.StatusChanges, 1)
	assert.Equal(t, StatusChange{Target: TargetPlan, ID: "plan-1", OldStatus: "to_do", NewStatus: "completed"}, d.StatusChanges[0])
	assert.Empty(t, d.ContentChanges)
}

func TestDetect_NewAndDeletedPlan(t *testing.T) {
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-old", Description: "gone soon", Status: task.StatusToDo}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-new", Description: "fresh", Status: task.StatusToDo}},
	}
	d := Detect(pp, tk, nil, "")
	var kinds []ChangeKind
	for _, c := range d.ContentChanges {
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, ChangeNewPlan)
	assert.Contains(t, kinds, ChangeDeletedPlan)
}

func TestDetect_HintsCollapsedViewRule(t *testing.T) {
	tk := &task.Task{Hints: []string{"keep me"}}
	pp := panel.ParsedPanel{Hints: nil}
	d := Detect(pp, tk, nil, "")
	assert.Empty(t, d.ContentChanges, "empty panel hints against non-empty task hints must not emit a change")
}

func TestDetect_HintsReplacementIsAChange(t *testing.T) {
	tk := &task.Task{Hints: []string{"a"}}
	pp := panel.ParsedPanel{Hints: []string{"b"}}
	d := Detect(pp, tk, nil, "")
	require.Len(t, d.ContentChanges, 1)
	assert.Equal(t, TargetHints, d.ContentChanges[0].Target)
}

// A plan description divergence with both sides
// timestamped becomes a conflict, not a straight content change.
func TestDetect_DescriptionConflictRequiresBothTimestamps(t *testing.T) {
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "A", Status: task.StatusToDo, UpdatedAt: updated}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "B", Status: task.StatusToDo}},
	}
	panelModified := updated.Add(10 * time.Second)

	d := Detect(pp, tk, &panelModified, "")
	require.Len(t, d.Conflicts, 1)
	assert.Equal(t, "plan-1", d.Conflicts[0].PlanID)
	assert.Empty(t, d.ContentChanges)
}

func TestDetect_DescriptionChangeWithoutTimestampIsPlainContentChange(t *testing.T) {
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "A", Status: task.StatusToDo}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "B", Status: task.StatusToDo}},
	}
	d := Detect(pp, tk, nil, "")
	assert.Empty(t, d.Conflicts)
	require.Len(t, d.ContentChanges, 1)
	assert.Equal(t, "description", d.ContentChanges[0].Field)
}

func TestDetect_EVRVerifyExpectDeepEqual(t *testing.T) {
	tk := &task.Task{
		EVRs: []task.EVR{{ID: "evr-1", Title: "t", Verify: task.List("a", "b"), Expect: task.Scalar("e")}},
	}
	pp := panel.ParsedPanel{
		EVRs: []panel.ParsedEVR{{ID: "evr-1", Title: "t", Verify: task.List("a", "c"), Expect: task.Scalar("e")}},
	}
	d := Detect(pp, tk, nil, "")
	require.Len(t, d.ContentChanges, 1)
	assert.Equal(t, "verify", d.ContentChanges[0].Field)
}

func TestDetect_NeverEmitsStatusFieldAsContentChange(t *testing.T) {
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "same", Status: task.StatusToDo,
			Steps: []task.Step{{ID: "step-1", Description: "same", Status: task.StatusToDo}}}},
		EVRs: []task.EVR{{ID: "evr-1", Title: "t", Status: task.EVRUnknown}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "same", Status: task.StatusCompleted,
			Steps: []panel.ParsedStep{{ID: "step-1", Description: "same", Status: task.StatusCompleted}}}},
		EVRs: []panel.ParsedEVR{{ID: "evr-1", Title: "t", Status: task.EVRPass}},
	}
	d := Detect(pp, tk, nil, "")
	for _, c := range d.ContentChanges {
		assert.NotEqual(t, "status", c.Field)
	}
}
