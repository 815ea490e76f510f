package panel

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wavemcp/wavemcp/internal/task"
)

// Render produces the canonical Markdown rendering of a task: a
// fixed section order, 2-space step indent, canonical checkbox glyphs,
// a blank line after every heading and between plans, and a stable
// HTML-comment anchor on every plan/step/EVR line. Anchors are minted
// with a short id the first time a plan/step/EVR is rendered; once
// present they never change, so repeated renders of an unmodified entity
// are byte-identical.
func Render(t *task.Task) string {
	var b strings.Builder

	b.WriteString("# Task: " + t.Title + "\n\n")

	writeBulletSection(&b, "Requirements", t.Requirements)
	writeBulletSection(&b, "Issues", t.Issues)
	writeHintsSection(&b, t.Hints)
	writePlansSection(&b, t.Plans)
	writeEVRSection(&b, t.EVRs)
	writeLogsSection(&b, t.Logs)

	return b.String()
}

// RenderWithFrontMatter renders the canonical panel preceded by the YAML
// front matter block (`md_version`, `last_modified`) that lets the next
// parse carry the sync bookkeeping back in. Rendering mints
// any missing anchor ids first, then refreshes t's Fingerprints and ETag
// so the emitted md_version always matches the body it precedes.
func RenderWithFrontMatter(t *task.Task) string {
	body := Render(t)
	fp := Fingerprint(t)
	t.Fingerprints = fp
	t.ETag = AggregateVersion(fp)

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("md_version: " + t.ETag + "\n")
	if !t.UpdatedAt.IsZero() {
		b.WriteString("last_modified: " + t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z") + "\n")
	}
	b.WriteString("---\n")
	b.WriteString(body)
	return b.String()
}

func writeBulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("## " + title + "\n\n")
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
	b.WriteString("\n")
}

// writeHintsSection renders task-level hints as `> text` lines.
func writeHintsSection(b *strings.Builder, hints []string) {
	if len(hints) == 0 {
		return
	}
	b.WriteString("## Task Hints\n\n")
	for _, h := range hints {
		b.WriteString("> " + h + "\n")
	}
	b.WriteString("\n")
}

func writePlansSection(b *strings.Builder, plans []task.Plan) {
	if len(plans) == 0 {
		return
	}
	b.WriteString("## Plans & Steps\n\n")
	for i := range plans {
		p := &plans[i]
		if p.ID == "" {
			p.ID = mintID(KindPlan)
		}
		b.WriteString(fmt.Sprintf("%d. [%s] %s <!-- plan:%s -->\n", i+1, CanonicalGlyph(p.Status), p.Description, p.ID))
		for _, evrID := range p.EVRBindings {
			b.WriteString("  - [evr] " + evrID + "\n")
		}
		writeTagsAndHints(b, "  ", p.Tags, p.Hints, nil)
		for j := range p.Steps {
			s := &p.Steps[j]
			if s.ID == "" {
				s.ID = mintID(KindStep)
			}
			b.WriteString(fmt.Sprintf("  %d.%d. [%s] %s <!-- step:%s -->\n", i+1, j+1, CanonicalGlyph(s.Status), s.Description, s.ID))
			writeTagsAndHints(b, "    ", s.Tags, s.Hints, s.UsesEVR)
		}
		b.WriteString("\n")
	}
}

// writeTagsAndHints renders context tags as `- [kind] value` and hints as
// `> text`, both at the given indent. uses_evr ids render as
// `- [uses_evr] id` tags, matching the context-tag grammar rather than a
// bespoke shape.
func writeTagsAndHints(b *strings.Builder, indent string, tags []task.ContextTag, hints []string, usesEVR []string) {
	for _, t := range tags {
		b.WriteString(fmt.Sprintf("%s- [%s] %s\n", indent, t.Kind, t.Value))
	}
	for _, h := range hints {
		b.WriteString(indent + "> " + h + "\n")
	}
	for _, e := range usesEVR {
		b.WriteString(fmt.Sprintf("%s- [uses_evr] %s\n", indent, e))
	}
}

// writeEVRSection renders each EVR with its fixed field order:
// verify, expect, status, class, last_run, notes, proof.
func writeEVRSection(b *strings.Builder, evrs []task.EVR) {
	if len(evrs) == 0 {
		return
	}
	b.WriteString("## Expected Visible Results\n\n")
	for i := range evrs {
		e := &evrs[i]
		if e.ID == "" {
			e.ID = mintID(KindEVR)
		}
		b.WriteString(fmt.Sprintf("%d. [%s] %s <!-- evr:%s -->\n", i+1, CanonicalEVRGlyph(e.Status), e.Title, e.ID))
		writeTextOrListField(b, "verify", e.Verify)
		writeTextOrListField(b, "expect", e.Expect)
		b.WriteString("  - [status] " + string(e.Status) + "\n")
		b.WriteString("  - [class] " + string(e.Class) + "\n")
		if e.LastRun != nil {
			b.WriteString("  - [last_run] " + e.LastRun.UTC().Format("2006-01-02T15:04:05Z") + "\n")
		}
		if e.Notes != "" {
			b.WriteString("  - [notes] " + e.Notes + "\n")
		}
		if e.Proof != "" {
			b.WriteString("  - [proof] " + e.Proof + "\n")
		}
		b.WriteString("\n")
	}
}

func writeTextOrListField(b *strings.Builder, field string, v task.TextOrList) {
	for _, it := range v.Items {
		b.WriteString("  - [" + field + "] " + it + "\n")
	}
}

func writeLogsSection(b *strings.Builder, logs []task.LogEntry) {
	if len(logs) == 0 {
		return
	}
	b.WriteString("## Logs\n\n")
	for _, l := range logs {
		line := fmt.Sprintf("[%s] %s %s/%s: %s", l.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), l.Level, l.Category, l.Action, l.Message)
		b.WriteString(line + "\n")
		if l.AINotes != "" {
			b.WriteString("  AI Notes: " + l.AINotes + "\n")
		}
	}
	b.WriteString("\n")
}

// mintCounter backs the monotonic component of minted anchor ids.
var mintCounter uint64

// mintID mints a stable id of the shape `<kind>-<8-char-monotonic>` for a
// newly-created entity on its first render. The 8 hex characters
// combine a process-local monotonic counter with a uuid-derived suffix so
// ids stay unique across processes without needing central coordination.
func mintID(kind AnchorKind) string {
	mintCounter++
	return fmt.Sprintf("%s-%06x%s", kind, mintCounter&0xFFFFFF, uuid.NewString()[:2])
}
