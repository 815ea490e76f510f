package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanAnchors_DuplicateGetsSyntheticSuffixAndWarning(t *testing.T) {
	lines := []string{
		"1. [ ] first <!-- plan:plan-1 -->",
		"2. [ ] second <!-- plan:plan-1 -->",
	}
	anchors, _, warnings := ScanAnchors(lines)
	require.Len(t, anchors, 2)
	assert.Equal(t, "plan-1", anchors[0].ID)
	assert.Equal(t, "plan-1-dup1", anchors[1].ID)
	require.Len(t, warnings, 1)
}

func TestBestMatch_PrefersNearestWithinWindow(t *testing.T) {
	anchors := []Anchor{
		{Kind: KindPlan, ID: "far", Line: 10},
		{Kind: KindPlan, ID: "near", Line: 6},
	}
	a, ok := BestMatch(anchors, KindPlan, 5)
	require.True(t, ok)
	assert.Equal(t, "near", a.ID)
}

func TestBestMatch_TieBreaksTowardGreaterLine(t *testing.T) {
	anchors := []Anchor{
		{Kind: KindPlan, ID: "before", Line: 3},
		{Kind: KindPlan, ID: "after", Line: 7},
	}
	a, ok := BestMatch(anchors, KindPlan, 5)
	require.True(t, ok)
	assert.Equal(t, "after", a.ID, "ties should prefer the anchor after the subject line")
}

func TestBestMatch_OutsideWindowNotFound(t *testing.T) {
	anchors := []Anchor{{Kind: KindPlan, ID: "far", Line: 100}}
	_, ok := BestMatch(anchors, KindPlan, 5)
	assert.False(t, ok)
}

func TestScanAnchors_OrdinalPaths(t *testing.T) {
	lines := []string{
		"1. [ ] top level",
		"  1.2. [ ] nested",
	}
	_, ordinals, _ := ScanAnchors(lines)
	require.Len(t, ordinals, 2)
	assert.Equal(t, "1", ordinals[0].Path)
	assert.Equal(t, 1, ordinals[0].Depth)
	assert.Equal(t, "1.2", ordinals[1].Path)
	assert.Equal(t, 2, ordinals[1].Depth)
}
