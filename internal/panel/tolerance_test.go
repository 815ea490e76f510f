package panel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTolerance_NormalizesGlyphVariants(t *testing.T) {
	raw := "1. [X] done <!-- plan:plan-1 -->\n2. [~] doing <!-- plan:plan-2 -->\n3. [✗] blocked <!-- plan:plan-3 -->"
	lines, fixes, errs := ApplyTolerance(raw)
	assert.Empty(t, errs)
	assert.NotEmpty(t, fixes)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "[x] done")
	assert.Contains(t, joined, "[-] doing")
	assert.Contains(t, joined, "[!] blocked")
}

func TestApplyTolerance_PromotesBareKeywordToHeading(t *testing.T) {
	lines, fixes, _ := ApplyTolerance("Requirements\n- one\n")
	require.NotEmpty(t, fixes)
	assert.Equal(t, "## Requirements", lines[0])
}

func TestApplyTolerance_MintsMissingAnchor(t *testing.T) {
	lines, fixes, _ := ApplyTolerance("1. [ ] no anchor here\n")
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "<!-- plan:")
	found := false
	for _, f := range fixes {
		if f.Step == "anchor_mint" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestApplyTolerance_FixBudgetCapped(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("1. [X] item\n")
	}
	_, fixes, errs := ApplyTolerance(b.String())
	assert.LessOrEqual(t, len(fixes), 50)
	assert.NotEmpty(t, errs, "fixes beyond the budget must surface as errors, not be silently dropped")
}

func TestApplyTolerance_IndentOverflowConvertsToCommentNotDrop(t *testing.T) {
	raw := "1. [ ] plan <!-- plan:plan-1 -->\n" +
		"  1.1. [ ] step <!-- step:step-1 -->\n" +
		"      1.1.1. [ ] too deep <!-- step:step-2 -->\n"
	lines, _, _ := ApplyTolerance(raw)

	structural := 0
	var overIndented string
	for _, l := range lines {
		if checkboxLineRe.MatchString(l) {
			structural++
		}
		if strings.Contains(l, "over-indented") {
			overIndented = l
		}
	}
	assert.Equal(t, 2, structural, "the too-deep line must no longer parse as a structural checkbox")
	assert.Contains(t, overIndented, "too deep", "converted content must be preserved, never dropped")
}
