package panel

import (
	"regexp"
	"strings"

	"github.com/wavemcp/wavemcp/internal/task"
)

// checkboxLineRe is the checkbox line grammar:
//
//	^(?:\d+(?:\.\d+)*\.?\s*|[-*]\s*)?\[<glyph>\]\s*<text>
var checkboxLineRe = regexp.MustCompile(`^\s*(?:(\d+(?:\.\d+)*)\.?\s*|[-*]\s*)?\[([^\]]*)\]\s*(.*)$`)

// GlyphVariants maps every tolerated glyph spelling to the
// canonical status it represents. This is the single source of truth
// shared by the parser's normalization pass and anything that needs to
// recognize a raw glyph token before normalization has run.
var GlyphVariants = map[string]task.Status{
	" ":      task.StatusToDo,
	"　": task.StatusToDo, // ideographic space
	"-":      task.StatusInProgress,
	"~":      task.StatusInProgress,
	"/":      task.StatusInProgress,
	"\\":     task.StatusInProgress,
	"|":      task.StatusInProgress,
	"x":      task.StatusCompleted,
	"X":      task.StatusCompleted,
	"✓": task.StatusCompleted, // ✓
	"✔": task.StatusCompleted, // ✔
	"√": task.StatusCompleted, // √
	"!":      task.StatusBlocked,
	"✗": task.StatusBlocked, // ✗
	"✘": task.StatusBlocked, // ✘
	"×": task.StatusBlocked, // ×
}

// CanonicalGlyph returns the single canonical glyph character the renderer
// must emit for a status.
func CanonicalGlyph(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return "-"
	case task.StatusCompleted:
		return "x"
	case task.StatusBlocked:
		return "!"
	default:
		return " "
	}
}

// CanonicalEVRGlyph returns the canonical glyph for an EVR status.
func CanonicalEVRGlyph(s task.EVRStatus) string {
	switch s {
	case task.EVRSkip:
		return "-"
	case task.EVRPass:
		return "x"
	case task.EVRFail:
		return "!"
	default:
		return " "
	}
}

// StatusFromGlyphToken normalizes a raw glyph token (the content between
// the checkbox brackets) into a status. ok is false for unrecognized
// tokens.
func StatusFromGlyphToken(tok string) (task.Status, bool) {
	s, ok := GlyphVariants[tok]
	return s, ok
}

// EVRStatusFromGlyphToken maps a raw EVR glyph token to an EVR status.
// EVR checkboxes use the same four-way mapping collapsed onto
// pass/fail/skip/unknown: "[ ]"→unknown, "[x]"→pass, "[!]"→fail,
// "[-]"→skip.
func EVRStatusFromGlyphToken(tok string) (task.EVRStatus, bool) {
	s, ok := StatusFromGlyphToken(tok)
	if !ok {
		return "", false
	}
	switch s {
	case task.StatusToDo:
		return task.EVRUnknown, true
	case task.StatusInProgress:
		return task.EVRSkip, true
	case task.StatusCompleted:
		return task.EVRPass, true
	case task.StatusBlocked:
		return task.EVRFail, true
	}
	return "", false
}

// CheckboxLine is a parsed checkbox line before anchor/id resolution.
type CheckboxLine struct {
	NumberPath string
	GlyphToken string
	Text       string
	Matched    bool
}

// ParseCheckboxLine applies the checkbox grammar to a single raw line.
// HTML-comment anchors inside the text are stripped before Text is
// stored; identity comes from the anchor resolver, never the text.
func ParseCheckboxLine(line string) CheckboxLine {
	m := checkboxLineRe.FindStringSubmatch(line)
	if m == nil {
		return CheckboxLine{}
	}
	text := strings.TrimSpace(stripAnchors(m[3]))
	return CheckboxLine{NumberPath: m[1], GlyphToken: m[2], Text: text, Matched: true}
}

func stripAnchors(s string) string {
	return anchorRe.ReplaceAllString(s, "")
}

// sectionHeading is the recognized (case-insensitive) vocabulary for
// level-2 headings. Both English and a small set of native-label
// aliases are accepted, but the recognized set itself is closed.
type sectionHeading struct {
	Canonical string
	Aliases   []string
}

var sectionVocabulary = []sectionHeading{
	{Canonical: "Requirements", Aliases: []string{"requirements", "vaatimukset"}},
	{Canonical: "Issues", Aliases: []string{"issues", "ongelmat"}},
	{Canonical: "Task Hints", Aliases: []string{"task hints", "hints", "vihjeet"}},
	{Canonical: "Plans & Steps", Aliases: []string{"plans & steps", "plans and steps", "suunnitelmat"}},
	{Canonical: "Expected Visible Results", Aliases: []string{"expected visible results", "evr", "evrs", "odotetut tulokset"}},
	{Canonical: "Logs", Aliases: []string{"logs", "loki"}},
}

// MatchSectionHeading returns the canonical section name for heading text,
// or "" if the text isn't in the closed recognized vocabulary.
func MatchSectionHeading(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	for _, sh := range sectionVocabulary {
		for _, alias := range sh.Aliases {
			if norm == alias {
				return sh.Canonical
			}
		}
	}
	return ""
}

// IsSectionKeyword reports whether a short line exactly matches a
// recognized section keyword, for the "promote bare keyword lines to
// headings" tolerance fix.
func IsSectionKeyword(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 40 {
		return "", false
	}
	if strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	canon := MatchSectionHeading(trimmed)
	return canon, canon != ""
}
