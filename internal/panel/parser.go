// Package panel implements the tolerant Markdown panel format: parsing,
// canonical rendering, and content fingerprinting. The
// panel is the human- and agent-editable Markdown mirror of a task (see
// package task); this package never decides business state, it only
// round-trips text.
package panel

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wavemcp/wavemcp/internal/task"
)

// FrontMatter is the optional YAML header recording sync bookkeeping
// (md_version, last_modified).
type FrontMatter struct {
	MDVersion    string    `yaml:"md_version,omitempty"`
	LastModified time.Time `yaml:"last_modified,omitempty"`
}

// ParsedEVR is an EVR entry read from the panel, pre-merge with the
// structured task (merge happens in package sync).
type ParsedEVR struct {
	ID      string
	Title   string
	Verify  task.TextOrList
	Expect  task.TextOrList
	Status  task.EVRStatus
	Class   task.EVRClass
	LastRun string
	Notes   string
	Proof   string
	Line    int
}

// ParsedStep mirrors task.Step as read directly off the page.
type ParsedStep struct {
	ID          string
	Description string
	Status      task.Status
	Tags        []task.ContextTag
	Hints       []string
	UsesEVR     []string
	Line        int
}

// ParsedPlan mirrors task.Plan as read directly off the page.
type ParsedPlan struct {
	ID          string
	Description string
	Status      task.Status
	Steps       []ParsedStep
	Tags        []task.ContextTag
	Hints       []string
	EVRBindings []string
	Line        int
}

// ParsedPanel is the full result of parsing one panel document: the
// recovered structure plus every tolerance fix and unrecovered error
// encountered along the way.
type ParsedPanel struct {
	FrontMatter  FrontMatter
	Title        string
	Requirements []string
	Issues       []string
	Hints        []string
	Plans        []ParsedPlan
	EVRs         []ParsedEVR
	LogLines     []string
	Fixes        []Fix
	Errors       []ParseError
}

// matchHeading recognizes "#" / "##" lines without pulling in a full
// Markdown AST library; the panel format is line-oriented enough that a
// small hand-rolled scanner beats a heavyweight parser dependency.
func matchHeading(line string) (level int, text string, ok bool) {
	trimmed := strings.TrimRight(line, " \t")
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 2 || n >= len(trimmed) || trimmed[n] != ' ' {
		return 0, "", false
	}
	return n, strings.TrimSpace(trimmed[n:]), true
}

// Parse runs the tolerance pipeline then assembles a ParsedPanel from the
// repaired lines.
func Parse(raw string) (ParsedPanel, error) {
	body, fm, fmErr := splitFrontMatter(raw)
	lines, fixes, errs := ApplyTolerance(body)

	pp := ParsedPanel{FrontMatter: fm, Fixes: fixes, Errors: errs}
	if fmErr != nil {
		pp.Errors = append(pp.Errors, ParseError{Line: 0, Message: fmt.Sprintf("front matter: %v", fmErr)})
	}

	sections := splitSections(lines)

	for _, sec := range sections {
		switch sec.name {
		case "":
			if pp.Title == "" {
				pp.Title = strings.TrimPrefix(sec.title, "Task: ")
			}
		case "Requirements":
			pp.Requirements = bulletItems(sec.lines)
		case "Issues":
			pp.Issues = bulletItems(sec.lines)
		case "Task Hints":
			pp.Hints = hintItems(sec.lines)
		case "Logs":
			pp.LogLines = nonEmptyLines(sec.lines)
		case "Plans & Steps":
			plans, perrs := parsePlans(sec.lines, sec.offset)
			pp.Plans = plans
			pp.Errors = append(pp.Errors, perrs...)
		case "Expected Visible Results":
			evrs, perrs := parseEVRs(sec.lines, sec.offset)
			pp.EVRs = evrs
			pp.Errors = append(pp.Errors, perrs...)
		}
	}

	return pp, nil
}

type section struct {
	name   string // canonical section name, "" for the preamble/title
	title  string
	lines  []string
	offset int // line number in the original (post-tolerance) document of lines[0]
}

// splitSections partitions the tolerant lines by level-1 title and
// level-2 recognized section headings.
func splitSections(lines []string) []section {
	var sections []section
	cur := section{}
	flush := func() {
		if cur.name != "" || len(cur.lines) > 0 || cur.title != "" {
			sections = append(sections, cur)
		}
	}
	for i, line := range lines {
		if lvl, text, ok := matchHeading(line); ok {
			if lvl == 1 {
				flush()
				cur = section{name: "", title: text, offset: i + 1}
				continue
			}
			canon := MatchSectionHeading(text)
			if canon != "" {
				flush()
				cur = section{name: canon, offset: i + 1}
				continue
			}
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return sections
}

func bulletItems(lines []string) []string {
	var out []string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		t = strings.TrimPrefix(t, "- ")
		t = strings.TrimPrefix(t, "* ")
		t = strings.TrimSpace(stripAnchors(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// hintItems extracts `> text` hint lines.
func hintItems(lines []string) []string {
	var out []string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if !strings.HasPrefix(t, ">") {
			continue
		}
		t = strings.TrimSpace(strings.TrimPrefix(t, ">"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func nonEmptyLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// parsePlans walks the Plans & Steps section recognizing top-level
// checkbox lines as plans and indented ones as their steps.
func parsePlans(lines []string, base int) ([]ParsedPlan, []ParseError) {
	anchors, ordinals, warnings := ScanAnchors(lines)
	var errs []ParseError
	for _, w := range warnings {
		errs = append(errs, ParseError{Line: base + w.Line, Message: w.Message})
	}

	var plans []ParsedPlan
	var curPlan *ParsedPlan
	var curStep *ParsedStep // most recently parsed step of curPlan, if any

	// attachTarget picks the entity a hint/tag/uses_evr line following a
	// checkbox line belongs to: lines indented no
	// deeper than plan-indent+1 (2 spaces) belong to the plan; deeper
	// (step-indent, 4 spaces) lines belong to the most recently seen step.
	attachTarget := func(line string) (tags *[]task.ContextTag, hints *[]string, uses *[]string) {
		if curPlan == nil {
			return nil, nil, nil
		}
		if curStep != nil && leadingSpaces(line) > 2 {
			return &curStep.Tags, &curStep.Hints, &curStep.UsesEVR
		}
		return &curPlan.Tags, &curPlan.Hints, nil
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "<!--") && !checkboxLineRe.MatchString(line) {
			continue
		}
		if kind, val, ok := parseContextTagLine(line); ok {
			tags, _, uses := attachTarget(line)
			switch {
			case kind == task.TagUsesEVR:
				if uses != nil {
					*uses = append(*uses, val)
				}
			case kind == task.TagEVR && curPlan != nil && (curStep == nil || leadingSpaces(line) <= 2):
				// A plan-level evr tag binds the plan to the EVR
				// rather than surviving as a plain context tag.
				curPlan.EVRBindings = append(curPlan.EVRBindings, val)
			default:
				if tags != nil {
					*tags = append(*tags, task.ContextTag{Kind: kind, Value: val})
				}
			}
			continue
		}
		if hint, ok := parseHintLine(line); ok {
			_, hints, _ := attachTarget(line)
			if hints != nil {
				*hints = append(*hints, hint)
			}
			continue
		}
		cl := ParseCheckboxLine(line)
		if !cl.Matched {
			continue
		}
		status, ok := StatusFromGlyphToken(cl.GlyphToken)
		if !ok {
			errs = append(errs, ParseError{Line: base + i, Message: fmt.Sprintf("unrecognized checkbox glyph %q", cl.GlyphToken)})
			continue
		}
		depth := indentDepth(line)
		if depth == 0 {
			id, _, _ := ResolveID(anchors, KindPlan, i)
			if id == "" {
				if o, ok := OrdinalAt(ordinals, i); ok {
					id = o.Path
				} else {
					id = Synthesize(KindPlan, i)
				}
			}
			plans = append(plans, ParsedPlan{ID: id, Description: cl.Text, Status: status, Line: base + i})
			curPlan = &plans[len(plans)-1]
			curStep = nil
			continue
		}
		if curPlan == nil {
			errs = append(errs, ParseError{Line: base + i, Message: "step line with no preceding plan"})
			continue
		}
		id, _, _ := ResolveID(anchors, KindStep, i)
		if id == "" {
			if o, ok := OrdinalAt(ordinals, i); ok {
				id = o.Path
			} else {
				id = Synthesize(KindStep, i)
			}
		}
		curPlan.Steps = append(curPlan.Steps, ParsedStep{ID: id, Description: cl.Text, Status: status, Line: base + i})
		curStep = &curPlan.Steps[len(curPlan.Steps)-1]
	}
	return plans, errs
}

// parseContextTagLine recognizes the `- [kind] value` tag grammar.
func parseContextTagLine(line string) (task.TagKind, string, bool) {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "- ")
	if !strings.HasPrefix(t, "[") {
		return "", "", false
	}
	closeIdx := strings.Index(t, "]")
	if closeIdx < 0 {
		return "", "", false
	}
	kind := task.TagKind(strings.TrimSpace(t[1:closeIdx]))
	value := strings.TrimSpace(t[closeIdx+1:])
	switch kind {
	case task.TagRef, task.TagDecision, task.TagDiscuss, task.TagInputs, task.TagConstraints, task.TagEVR, task.TagUsesEVR:
		return kind, value, true
	default:
		return "", "", false
	}
}

// parseHintLine recognizes the `> text` hint grammar.
func parseHintLine(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, ">") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(t, ">")), true
}

// parseEVRs walks the Expected Visible Results section. Each EVR is a
// checkbox line followed by indented `- [verify] ...`/`- [expect] ...`
// field rows.
func parseEVRs(lines []string, base int) ([]ParsedEVR, []ParseError) {
	anchors, ordinals, warnings := ScanAnchors(lines)
	var errs []ParseError
	for _, w := range warnings {
		errs = append(errs, ParseError{Line: base + w.Line, Message: w.Message})
	}

	var evrs []ParsedEVR
	var cur *ParsedEVR

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Field rows (`- [verify] ...`) share the bracket syntax with
		// checkbox lines, so they are claimed first.
		if field, v, ok := parseEVRFieldLine(line); ok && cur != nil {
			applyEVRField(cur, field, v)
			continue
		}
		cl := ParseCheckboxLine(line)
		if cl.Matched {
			status, ok := EVRStatusFromGlyphToken(cl.GlyphToken)
			if !ok {
				errs = append(errs, ParseError{Line: base + i, Message: fmt.Sprintf("unrecognized EVR glyph %q", cl.GlyphToken)})
				continue
			}
			id, _, _ := ResolveID(anchors, KindEVR, i)
			if id == "" {
				if o, ok := OrdinalAt(ordinals, i); ok {
					id = o.Path
				} else {
					id = Synthesize(KindEVR, i)
				}
			}
			evrs = append(evrs, ParsedEVR{ID: id, Title: cl.Text, Status: status, Line: base + i})
			cur = &evrs[len(evrs)-1]
			continue
		}
	}
	return evrs, errs
}

func applyEVRField(cur *ParsedEVR, field, v string) {
	switch field {
	case "verify":
		cur.Verify = appendTextOrList(cur.Verify, v)
	case "expect":
		cur.Expect = appendTextOrList(cur.Expect, v)
	case "status":
		if s, ok := parseEVRStatusText(v); ok {
			cur.Status = s
		}
	case "class":
		cur.Class = task.EVRClass(v)
	case "last_run":
		cur.LastRun = v
	case "notes":
		cur.Notes = v
	case "proof":
		cur.Proof = v
	}
}

// parseEVRFieldLine recognizes the `- [field] value` grammar used for EVR
// detail rows: verify, expect, status, class, last_run, notes, proof.
func parseEVRFieldLine(line string) (field, value string, ok bool) {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "- ")
	if !strings.HasPrefix(t, "[") {
		return "", "", false
	}
	closeIdx := strings.Index(t, "]")
	if closeIdx < 0 {
		return "", "", false
	}
	f := strings.ToLower(strings.TrimSpace(t[1:closeIdx]))
	switch f {
	case "verify", "expect", "status", "class", "last_run", "notes", "proof":
		return f, strings.TrimSpace(t[closeIdx+1:]), true
	default:
		return "", "", false
	}
}

func parseEVRStatusText(v string) (task.EVRStatus, bool) {
	switch task.EVRStatus(strings.ToLower(strings.TrimSpace(v))) {
	case task.EVRPass:
		return task.EVRPass, true
	case task.EVRFail:
		return task.EVRFail, true
	case task.EVRSkip:
		return task.EVRSkip, true
	case task.EVRUnknown:
		return task.EVRUnknown, true
	default:
		return "", false
	}
}

// appendTextOrList folds a field line into a TextOrList: the first value
// seen for a field is a scalar; a second value seen (a repeated field row)
// promotes it to a list, preserving the scalar/list distinction.
func appendTextOrList(existing task.TextOrList, v string) task.TextOrList {
	if v == "" {
		return existing
	}
	if len(existing.Items) == 0 {
		return task.Scalar(v)
	}
	items := append(append([]string{}, existing.Items...), v)
	return task.List(items...)
}

// splitFrontMatter strips a leading "---\n...\n---\n" YAML block, if
// present, and parses it into FrontMatter.
func splitFrontMatter(raw string) (body string, fm FrontMatter, err error) {
	const delim = "---"
	trimmed := raw
	if !strings.HasPrefix(trimmed, delim) {
		return raw, FrontMatter{}, nil
	}
	rest := strings.TrimPrefix(trimmed, delim)
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return raw, FrontMatter{}, nil
	}
	yamlBlock := rest[:end]
	after := rest[end+len(delim)+1:]
	after = strings.TrimPrefix(after, "\n")

	if e := yaml.Unmarshal([]byte(yamlBlock), &fm); e != nil {
		return after, FrontMatter{}, e
	}
	return after, fm, nil
}
