package panel

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxToleranceFixes caps the number of tolerance-pipeline fixes applied to
// a single panel before parsing gives up and reports the remainder as
// parse errors.
const maxToleranceFixes = 50

// Fix records one tolerance-pipeline correction applied while parsing a
// panel, for inclusion in the parse report.
type Fix struct {
	Step    string
	Line    int
	Message string
}

// ParseError is a defect the tolerance pipeline couldn't repair within
// the fix budget.
type ParseError struct {
	Line    int
	Message string
}

// tolerancePass runs the five-step tolerance pipeline over raw panel text
// and returns the repaired lines plus the fixes applied and any leftover
// errors, capped at maxToleranceFixes total fixes.
type tolerancePass struct {
	lines  []string
	fixes  []Fix
	errs   []ParseError
	budget int
}

func newTolerancePass(lines []string) *tolerancePass {
	return &tolerancePass{lines: lines, budget: maxToleranceFixes}
}

func (p *tolerancePass) record(step string, line int, msg string) bool {
	if p.budget <= 0 {
		p.errs = append(p.errs, ParseError{Line: line, Message: fmt.Sprintf("%s: %s (fix budget exhausted)", step, msg)})
		return false
	}
	p.fixes = append(p.fixes, Fix{Step: step, Line: line, Message: msg})
	p.budget--
	return true
}

// ApplyTolerance NFC-normalizes the raw text (so composed and decomposed
// spellings of a glyph compare equal) and then runs the five-step
// tolerance pipeline:
//  1. Blank-line insertion after headings and between consecutive
//     top-level checkbox lines.
//  2. Checkbox glyph normalization to one of the four canonical markers.
//  3. Indent renormalization: the distinct indent widths of status
//     checkbox lines across the whole document are collected; the
//     shallowest maps to column 0 and every deeper width to 2 spaces.
//     When three or more widths occur, lines at the deepest width are
//     converted to an HTML-comment note instead of a phantom nested step.
//     No dominant indent unit is detected: a line at an intermediate
//     width becomes a step.
//  4. Heading promotion: bare section-keyword lines are promoted to
//     level-2 headings.
//  5. Anchor emission: un-anchored checkbox lines get a synthesized id
//     (via Synthesize) recorded as a fix, not silently dropped.
//
// All of this is capped at maxToleranceFixes; fixes beyond the cap are
// reported as ParseErrors instead of being silently applied.
func ApplyTolerance(raw string) (lines []string, fixes []Fix, errs []ParseError) {
	normalized := norm.NFC.String(raw)
	split := strings.Split(normalized, "\n")

	p := newTolerancePass(split)
	p.insertBlankLines()
	p.normalizeGlyphs()
	p.renormalizeIndent()
	p.promoteHeadings()
	p.emitAnchors()

	return p.lines, p.fixes, p.errs
}

// isStatusCheckboxLine reports whether a line is a real checkbox line:
// it matches the checkbox grammar AND its glyph token is a recognized
// status glyph. This distinguishes `1. [x] text` from the tag and EVR
// field rows (`- [ref] ...`, `- [verify] ...`) that share the same
// bracket syntax.
func isStatusCheckboxLine(line string) bool {
	cl := ParseCheckboxLine(line)
	if !cl.Matched {
		return false
	}
	_, ok := StatusFromGlyphToken(cl.GlyphToken)
	return ok
}

// insertBlankLines is tolerance step 1: a blank line is inserted
// after a heading and between two consecutive top-level checkbox lines,
// so downstream section splitting sees the canonical shape.
func (p *tolerancePass) insertBlankLines() {
	var out []string
	for i, line := range p.lines {
		out = append(out, line)
		if i+1 >= len(p.lines) {
			continue
		}
		next := p.lines[i+1]
		if strings.TrimSpace(next) == "" {
			continue
		}
		_, _, isHeading := matchHeading(line)
		needBlank := false
		switch {
		case isHeading:
			needBlank = true
		case isStatusCheckboxLine(line) && leadingSpaces(line) == 0 &&
			isStatusCheckboxLine(next) && leadingSpaces(next) == 0:
			needBlank = true
		}
		if needBlank && p.record("blank_line_insert", i, "inserted missing blank line") {
			out = append(out, "")
		}
	}
	p.lines = out
}

// normalizeGlyphs rewrites any recognized non-canonical checkbox glyph
// token to its canonical spelling in place.
func (p *tolerancePass) normalizeGlyphs() {
	for i, line := range p.lines {
		cl := ParseCheckboxLine(line)
		if !cl.Matched {
			continue
		}
		status, ok := StatusFromGlyphToken(cl.GlyphToken)
		if !ok {
			continue
		}
		canon := CanonicalGlyph(status)
		if cl.GlyphToken == canon {
			continue
		}
		idx := strings.Index(line, "["+cl.GlyphToken+"]")
		if idx < 0 {
			continue
		}
		newLine := line[:idx] + "[" + canon + "]" + line[idx+len(cl.GlyphToken)+2:]
		if p.record("glyph_normalize", i, fmt.Sprintf("normalized glyph %q to %q", cl.GlyphToken, canon)) {
			p.lines[i] = newLine
		}
	}
}

// renormalizeIndent builds an indent-width histogram over checkbox lines
// and rewrites indentation onto a canonical 2-space-per-level grid: the
// shallowest width becomes plan level and every deeper width step level.
// When three or more widths occur, lines at the deepest width are demoted
// to an HTML-comment note rather than invented as a third nesting level,
// since the data model only has plan/step depth.
func (p *tolerancePass) renormalizeIndent() {
	hist := map[int]int{}
	for _, line := range p.lines {
		if !isStatusCheckboxLine(line) {
			continue
		}
		hist[leadingSpaces(line)]++
	}
	if len(hist) == 0 {
		return
	}
	widths := sortedKeys(hist)
	// widths[0] is the shallowest observed indent (plan level, canonical 0).
	// widths[1], if present, is the step level, canonical 2.
	unit := map[int]int{}
	for i, w := range widths {
		depth := i
		if depth > 1 {
			depth = 1
		}
		unit[w] = depth * 2
	}

	for i, line := range p.lines {
		if !isStatusCheckboxLine(line) {
			continue
		}
		cur := leadingSpaces(line)
		canon, known := unit[cur]
		if !known {
			continue
		}
		if len(widths) > 2 && cur == widths[len(widths)-1] {
			// Deeper than plan/step: fold into an advisory comment
			// instead of fabricating a third structural level.
			trimmed := strings.TrimLeft(line, " \t")
			if p.record("indent_overflow", i, "indent deeper than plan/step nesting, converted to note") {
				p.lines[i] = fmt.Sprintf("<!-- over-indented: %s -->", trimmed)
			}
			continue
		}
		if cur == canon {
			continue
		}
		trimmed := strings.TrimLeft(line, " \t")
		if p.record("indent_renormalize", i, fmt.Sprintf("reindented from %d to %d spaces", cur, canon)) {
			p.lines[i] = strings.Repeat(" ", canon) + trimmed
		}
	}
}

// promoteHeadings rewrites a bare recognized section keyword line into a
// level-2 Markdown heading.
func (p *tolerancePass) promoteHeadings() {
	for i, line := range p.lines {
		canon, ok := IsSectionKeyword(line)
		if !ok {
			continue
		}
		if p.record("heading_promote", i, fmt.Sprintf("promoted bare keyword %q to heading", strings.TrimSpace(line))) {
			p.lines[i] = "## " + canon
		}
	}
}

// emitAnchors scans for checkbox lines with no associated anchor comment
// and appends a synthesized one, recording each as a fix so the caller
// can see which ids were minted rather than authored.
func (p *tolerancePass) emitAnchors() {
	anchors, _, _ := ScanAnchors(p.lines)
	hasAnchor := map[int]bool{}
	for _, a := range anchors {
		hasAnchor[a.Line] = true
	}
	section := ""
	for i, line := range p.lines {
		if lvl, text, ok := matchHeading(line); ok && lvl == 2 {
			section = MatchSectionHeading(text)
			continue
		}
		if !isStatusCheckboxLine(line) {
			continue
		}
		if hasAnchor[i] {
			continue
		}
		kind := KindPlan
		if section == "Expected Visible Results" {
			kind = KindEVR
		} else if indentDepth(line) > 0 {
			kind = KindStep
		}
		id := Synthesize(kind, i)
		if p.record("anchor_mint", i, fmt.Sprintf("minted missing anchor %s:%s", kind, id)) {
			p.lines[i] = line + fmt.Sprintf(" <!-- %s:%s -->", kind, id)
		}
	}
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 4
		} else {
			break
		}
	}
	return n
}

func indentDepth(s string) int {
	n := leadingSpaces(s)
	if n == 0 {
		return 0
	}
	return 1
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
