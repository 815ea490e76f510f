package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavemcp/wavemcp/internal/task"
)

func buildSampleTask() *task.Task {
	return &task.Task{
		Title:        "Sample",
		Requirements: []string{"a", "b"},
		Plans: []task.Plan{
			{ID: "plan-1", Description: "one", Status: task.StatusToDo},
			{ID: "plan-2", Description: "two", Status: task.StatusInProgress},
		},
		EVRs: []task.EVR{
			{ID: "evr-1", Title: "check", Status: task.EVRUnknown, Verify: task.Scalar("v"), Expect: task.Scalar("e")},
		},
	}
}

func TestAggregateVersion_StableAcrossOrderAndMachine(t *testing.T) {
	t1 := buildSampleTask()
	t2 := buildSampleTask()
	// Swap plan order — logically the same content, different slice order.
	t2.Plans[0], t2.Plans[1] = t2.Plans[1], t2.Plans[0]

	v1 := AggregateVersion(Fingerprint(t1))
	v2 := AggregateVersion(Fingerprint(t2))
	assert.Equal(t, v1, v2, "md_version must not depend on plan slice order")
}

func TestAggregateVersion_ChangesWithContent(t *testing.T) {
	t1 := buildSampleTask()
	t2 := buildSampleTask()
	t2.Plans[0].Description = "different"

	v1 := AggregateVersion(Fingerprint(t1))
	v2 := AggregateVersion(Fingerprint(t2))
	assert.NotEqual(t, v1, v2)
}

func TestFingerprint_StatusChangeDoesNotAffectContentHash(t *testing.T) {
	t1 := buildSampleTask()
	t2 := buildSampleTask()
	t2.Plans[0].Status = task.StatusCompleted

	fp1 := Fingerprint(t1)
	fp2 := Fingerprint(t2)
	assert.Equal(t, fp1.Plans["plan-1"], fp2.Plans["plan-1"], "fingerprint tracks content, not status")
}

func TestFingerprint_PerPlanIsolation(t *testing.T) {
	t1 := buildSampleTask()
	t2 := buildSampleTask()
	t2.Plans[1].Description = "changed"

	fp1 := Fingerprint(t1)
	fp2 := Fingerprint(t2)
	assert.Equal(t, fp1.Plans["plan-1"], fp2.Plans["plan-1"], "unrelated plan's fingerprint must stay stable")
	assert.NotEqual(t, fp1.Plans["plan-2"], fp2.Plans["plan-2"])
}
