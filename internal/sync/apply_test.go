package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/task"
)

func TestApply_ConflictResolvedOursIsDroppedFromChanges(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(-10 * time.Second) // older than task -> "ours" wins
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "A", Status: task.StatusToDo, UpdatedAt: t0}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "B", Status: task.StatusToDo}},
	}
	diff := Detect(pp, tk, &panelT, "")
	require.Len(t, diff.Conflicts, 1)

	result := Apply(diff, tk, StrategyTSOnly, SkewDefault, time.Now())
	assert.Empty(t, result.Applied, "a conflict resolved \"ours\" must not appear in changes[]")
	assert.Equal(t, "A", tk.Plans[0].Description, "task's own text must survive an \"ours\" resolution")
}

func TestApply_ConflictResolvedTheirsAppliesChange(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(10 * time.Second) // newer than task -> "theirs" wins
	tk := &task.Task{
		Plans: []task.Plan{{ID: "plan-1", Description: "A", Status: task.StatusToDo, UpdatedAt: t0}},
	}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "B", Status: task.StatusToDo}},
	}
	diff := Detect(pp, tk, &panelT, "")
	result := Apply(diff, tk, StrategyTSOnly, SkewDefault, time.Now())
	require.Len(t, result.Applied, 1)
	assert.Equal(t, "B", tk.Plans[0].Description)
}

func TestApply_ProducesAuditEntriesForBothConflictsAndSync(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(10 * time.Second)
	tk := &task.Task{
		Title: "old title",
		Plans: []task.Plan{{ID: "plan-1", Description: "A", Status: task.StatusToDo, UpdatedAt: t0}},
	}
	pp := panel.ParsedPanel{
		Title: "new title",
		Plans: []panel.ParsedPlan{{ID: "plan-1", Description: "B", Status: task.StatusToDo}},
	}
	diff := Detect(pp, tk, &panelT, "")
	result := Apply(diff, tk, StrategyTSOnly, SkewDefault, time.Now())

	var hasConflictEntry, hasSyncEntry bool
	for _, e := range result.AuditEntries {
		if e.Type == "conflict" {
			hasConflictEntry = true
		}
		if e.Type == "sync" {
			hasSyncEntry = true
		}
	}
	assert.True(t, hasConflictEntry)
	assert.True(t, hasSyncEntry)
	assert.Equal(t, "new title", tk.Title)
}

func TestApply_NewPlanIsAddedToTask(t *testing.T) {
	tk := &task.Task{}
	pp := panel.ParsedPanel{
		Plans: []panel.ParsedPlan{{ID: "plan-new", Description: "fresh", Status: task.StatusInProgress}},
	}
	diff := Detect(pp, tk, nil, "")
	result := Apply(diff, tk, StrategyTSOnly, SkewDefault, time.Now())
	require.Len(t, result.Applied, 1)
	require.Len(t, tk.Plans, 1)
	assert.Equal(t, "fresh", tk.Plans[0].Description)
	// New plans are seeded to_do regardless of the panel's checkbox glyph —
	// status is never written back from the panel.
	assert.Equal(t, task.StatusToDo, tk.Plans[0].Status)
}

func TestApply_MDVersionRecomputedAfterApply(t *testing.T) {
	tk := &task.Task{Title: "X"}
	pp := panel.ParsedPanel{Title: "Y"}
	diff := Detect(pp, tk, nil, "")
	result := Apply(diff, tk, StrategyTSOnly, SkewDefault, time.Now())
	assert.NotEmpty(t, result.MDVersion)
	assert.Equal(t, panel.AggregateVersion(tk.Fingerprints), result.MDVersion)
}
