package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ts_only picks the side with the later timestamp,
// and swapping which side is later flips the resolution.
func TestResolve_TSOnly_PanelNewerWins(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(10 * time.Second)
	c := Conflict{PanelModified: &panelT, TaskModified: t0}
	rc := Resolve(c, StrategyTSOnly, SkewDefault)
	assert.Equal(t, ResolutionTheirs, rc.Resolution)
}

func TestResolve_TSOnly_TaskNewerWins(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(-10 * time.Second)
	c := Conflict{PanelModified: &panelT, TaskModified: t0}
	rc := Resolve(c, StrategyTSOnly, SkewDefault)
	assert.Equal(t, ResolutionOurs, rc.Resolution)
}

func TestResolve_TSOnly_MissingPanelTimestampIsOurs(t *testing.T) {
	c := Conflict{PanelModified: nil, TaskModified: time.Now()}
	rc := Resolve(c, StrategyTSOnly, SkewDefault)
	assert.Equal(t, ResolutionOurs, rc.Resolution)
}

func TestResolve_TSOnly_WithinSkewIsOurs(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(50 * time.Millisecond)
	c := Conflict{PanelModified: &panelT, TaskModified: t0}
	rc := Resolve(c, StrategyTSOnly, 100*time.Millisecond)
	assert.Equal(t, ResolutionOurs, rc.Resolution, "difference within configured skew should not flip to theirs")
}

func TestResolve_ETagFirstThenTS_EqualETagsPanelWins(t *testing.T) {
	c := Conflict{PanelETag: "v1", TaskETag: "v1"}
	rc := Resolve(c, StrategyETagFirstThenTS, SkewDefault)
	assert.Equal(t, ResolutionTheirs, rc.Resolution)
	assert.Equal(t, StrategyETagFirstThenTS, rc.Strategy)
}

func TestResolve_ETagFirstThenTS_DifferingETagsFallsBackToTS(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(10 * time.Second)
	c := Conflict{PanelETag: "v1", TaskETag: "v2", PanelModified: &panelT, TaskModified: t0}
	rc := Resolve(c, StrategyETagFirstThenTS, SkewDefault)
	assert.Equal(t, ResolutionTheirs, rc.Resolution)
}

func TestResolve_DefaultStrategyIsTSOnly(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	panelT := t0.Add(10 * time.Second)
	c := Conflict{PanelModified: &panelT, TaskModified: t0}
	rc := Resolve(c, Strategy("unknown-strategy"), SkewDefault)
	assert.Equal(t, StrategyTSOnly, rc.Strategy)
	assert.Equal(t, ResolutionTheirs, rc.Resolution)
}
