package evr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavemcp/wavemcp/internal/task"
)

func TestClassify_Basic(t *testing.T) {
	cases := []struct {
		name   string
		evr    task.EVR
		expect Classification
	}{
		{"pass", task.EVR{Status: task.EVRPass}, ClassPassed},
		{"fail", task.EVR{Status: task.EVRFail}, ClassFailed},
		{"unknown", task.EVR{Status: task.EVRUnknown}, ClassUnknown},
		{"skip with notes", task.EVR{Status: task.EVRSkip, Notes: "flaky in CI"}, ClassSkipped},
		{"skip without notes", task.EVR{Status: task.EVRSkip}, ClassUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, Classify(&c.evr))
		})
	}
}

// A skip is only ready once the most recent run
// carries non-empty notes.
func TestClassify_SkipReasonComesFromMostRecentRun(t *testing.T) {
	e := task.EVR{
		Status: task.EVRSkip,
		Runs: []task.Run{
			{Status: task.EVRSkip, Notes: "flaky network"},
			{Status: task.EVRSkip, Notes: ""},
		},
	}
	assert.Equal(t, ClassUnknown, Classify(&e), "the latest run has no notes, so skip is not yet ready")
	assert.Equal(t, ReasonNeedReasonSkip, UnreadyReasonFor(&e))
}

func TestClassify_SkipReasonFromLatestRunSatisfiesGate(t *testing.T) {
	e := task.EVR{
		Status: task.EVRSkip,
		Runs: []task.Run{
			{Status: task.EVRSkip, Notes: ""},
			{Status: task.EVRSkip, Notes: "known environment gap"},
		},
	}
	assert.Equal(t, ClassSkipped, Classify(&e))
	assert.True(t, Ready(&e))
}

func TestUnreadyReasonFor(t *testing.T) {
	assert.Equal(t, UnreadyReason(""), UnreadyReasonFor(&task.EVR{Status: task.EVRPass}))
	assert.Equal(t, ReasonFailed, UnreadyReasonFor(&task.EVR{Status: task.EVRFail}))
	assert.Equal(t, ReasonStatusUnknown, UnreadyReasonFor(&task.EVR{Status: task.EVRUnknown}))
	assert.Equal(t, ReasonNeedReasonSkip, UnreadyReasonFor(&task.EVR{Status: task.EVRSkip}))
}

func TestSummarize_BucketsAndUnreferenced(t *testing.T) {
	tk := &task.Task{
		EVRs: []task.EVR{
			{ID: "e1", Status: task.EVRPass, ReferencedBy: []string{"plan-1"}},
			{ID: "e2", Status: task.EVRFail},
			{ID: "e3", Status: task.EVRSkip, Notes: "reason"},
			{ID: "e4", Status: task.EVRUnknown},
		},
	}
	s := Summarize(tk)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, []string{"e1"}, s.Passed)
	assert.Equal(t, []string{"e2"}, s.Failed)
	assert.Equal(t, []string{"e3"}, s.Skipped)
	assert.Equal(t, []string{"e4"}, s.Unknown)
	assert.ElementsMatch(t, []string{"e2", "e3", "e4"}, s.Unreferenced)
}
