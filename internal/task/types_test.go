package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlyphForStatus_RoundTripsThroughStatusForGlyph(t *testing.T) {
	for _, s := range []Status{StatusToDo, StatusInProgress, StatusCompleted, StatusBlocked} {
		g := GlyphForStatus(s)
		got, ok := StatusForGlyph(g)
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
}

func TestGlyphForEVRStatus_RoundTrips(t *testing.T) {
	for _, s := range []EVRStatus{EVRPass, EVRFail, EVRSkip, EVRUnknown} {
		g := GlyphForEVRStatus(s)
		got, ok := EVRStatusForGlyph(g)
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
}

func TestStatusForGlyph_UnknownGlyphFails(t *testing.T) {
	_, ok := StatusForGlyph(Glyph('?'))
	assert.False(t, ok)
}

func TestTextOrList_ScalarVsListShapePreserved(t *testing.T) {
	scalar := Scalar("a")
	list := List("a")
	assert.False(t, scalar.IsList)
	assert.True(t, list.IsList)
	assert.False(t, scalar.Equal(list), "a scalar and a one-item list must not collapse into the same value")
}

func TestTextOrList_Equal(t *testing.T) {
	assert.True(t, List("a", "b").Equal(List("a", "b")))
	assert.False(t, List("a", "b").Equal(List("a", "c")))
	assert.False(t, List("a").Equal(List("a", "b")))
}

// The status of an EVR always equals the status of its most recent run,
// or unknown if none exist.
func TestEVR_RecordRun_StatusTracksMostRecent(t *testing.T) {
	e := &EVR{Status: EVRUnknown}
	assert.Nil(t, e.MostRecentRun())

	e.RecordRun(Run{Status: EVRFail})
	assert.Equal(t, EVRFail, e.Status)

	e.RecordRun(Run{Status: EVRPass, Notes: "fixed"})
	assert.Equal(t, EVRPass, e.Status)
	assert.Equal(t, "fixed", e.Notes)
	require.NotNil(t, e.MostRecentRun())
	assert.Equal(t, EVRPass, e.MostRecentRun().Status)
}

func TestTask_PlanByIDAndStepByID(t *testing.T) {
	tk := &Task{
		Plans: []Plan{{
			ID: "plan-1", Steps: []Step{{ID: "step-1"}},
		}},
	}
	p := tk.PlanByID("plan-1")
	require.NotNil(t, p)
	assert.Equal(t, "plan-1", p.ID)

	owner, s := tk.StepByID("step-1")
	require.NotNil(t, s)
	require.NotNil(t, owner)
	assert.Equal(t, "plan-1", owner.ID)

	assert.Nil(t, tk.PlanByID("missing"))
	_, missingStep := tk.StepByID("missing")
	assert.Nil(t, missingStep)
}

func TestTask_Completed(t *testing.T) {
	tk := &Task{}
	assert.False(t, tk.Completed())
	now := tk.CreatedAt
	tk.CompletedAt = &now
	assert.True(t, tk.Completed())
}

func TestNewID_IsMonotonicSortable(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "successive ULIDs must sort lexically increasing")
}
