// Package sync implements the difference detector, conflict
// resolver, and sync apply engine: the machinery that
// reconciles a freshly-parsed panel against the authoritative task
// aggregate without ever letting the panel dictate status.
package sync

import (
	"reflect"
	"time"

	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/task"
)

// Target names the kind of entity a change or conflict is scoped to.
type Target string

const (
	TargetTitle        Target = "title"
	TargetRequirements Target = "requirements"
	TargetIssues       Target = "issues"
	TargetHints        Target = "hints"
	TargetPlan         Target = "plan"
	TargetStep         Target = "step"
	TargetEVR          Target = "evr"
)

// ChangeKind enumerates the shapes a content change can take.
type ChangeKind string

const (
	ChangeFieldUpdate ChangeKind = "field_update"
	ChangeNewPlan     ChangeKind = "new_plan"
	ChangeDeletedPlan ChangeKind = "deleted_plan"
	ChangeNewStep     ChangeKind = "new_step"
	ChangeDeletedStep ChangeKind = "deleted_step"
	ChangeNewEVR      ChangeKind = "new_evr"
	ChangeDeletedEVR  ChangeKind = "deleted_evr"
)

// ContentChange is one writable-back difference found by the detector.
type ContentChange struct {
	Kind      ChangeKind
	Target    Target
	ID        string // plan/step/EVR id, "" for document-level fields
	PlanID    string // owning plan id, set for step-scoped changes
	Field     string
	NewValue  any
	NewPlan   *panel.ParsedPlan
	NewStep   *panel.ParsedStep
	NewEVR    *panel.ParsedEVR
	AppliedAt time.Time
}

// StatusChange is a reported-only, never-applied status divergence.
type StatusChange struct {
	Target    Target
	ID        string
	OldStatus string
	NewStatus string
}

// ConflictReason is why a description divergence escalated to a conflict
// rather than a straight content change.
type ConflictReason string

const (
	ReasonETagMismatch    ConflictReason = "etag_mismatch"
	ReasonConcurrentUpdate ConflictReason = "concurrent_update"
)

// Conflict is a plan-description divergence where both sides plausibly
// mutated independently and a resolution strategy must decide a winner.
type Conflict struct {
	PlanID        string
	PanelText     string
	TaskText      string
	PanelETag     string
	TaskETag      string
	PanelModified *time.Time
	TaskModified  time.Time
	Reason        ConflictReason
}

// Diff is the full output of the difference detector.
type Diff struct {
	ContentChanges []ContentChange
	StatusChanges  []StatusChange
	Conflicts      []Conflict
	Fingerprints   task.Fingerprints
}

// Detect compares a parsed panel against the authoritative task and
// produces the three-way diff below. panelModified is the
// panel's front-matter LastModified (or file mtime fallback), used only
// for conflict timestamp comparison — never deciding content ownership
// on its own.
func Detect(p panel.ParsedPanel, t *task.Task, panelModified *time.Time, panelETag string) Diff {
	d := Diff{Fingerprints: panel.Fingerprint(t)}

	diffScalar(&d, TargetTitle, "", "title", t.Title, p.Title)
	diffStringSlice(&d, TargetRequirements, "requirements", t.Requirements, p.Requirements)
	diffStringSlice(&d, TargetIssues, "issues", t.Issues, p.Issues)
	diffHints(&d, t.Hints, p.Hints)

	diffPlans(&d, t, p.Plans, panelModified, panelETag, t.ETag)
	diffEVRs(&d, t, p.EVRs)

	return d
}

func diffScalar(d *Diff, target Target, id, field string, oldV, newV string) {
	if oldV == newV {
		return
	}
	d.ContentChanges = append(d.ContentChanges, ContentChange{
		Kind: ChangeFieldUpdate, Target: target, ID: id, Field: field, NewValue: newV,
	})
}

func diffStringSlice(d *Diff, target Target, field string, oldV, newV []string) {
	if stringSliceEqual(oldV, newV) {
		return
	}
	d.ContentChanges = append(d.ContentChanges, ContentChange{
		Kind: ChangeFieldUpdate, Target: target, Field: field, NewValue: newV,
	})
}

// diffHints applies a special-case rule: an empty panel hint
// list against a non-empty task hint list is not a change — the panel is
// presumed to be a collapsed view, not an instruction to clear hints.
func diffHints(d *Diff, oldV, newV []string) {
	if len(newV) == 0 && len(oldV) > 0 {
		return
	}
	diffStringSlice(d, TargetHints, "hints", oldV, newV)
}

func diffPlans(d *Diff, t *task.Task, panelPlans []panel.ParsedPlan, panelModified *time.Time, panelETag, taskETag string) {
	byID := map[string]*panel.ParsedPlan{}
	for i := range panelPlans {
		byID[panelPlans[i].ID] = &panelPlans[i]
	}
	seen := map[string]bool{}

	for i := range t.Plans {
		tp := &t.Plans[i]
		pp, ok := byID[tp.ID]
		if !ok {
			d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeDeletedPlan, Target: TargetPlan, ID: tp.ID})
			continue
		}
		seen[tp.ID] = true
		diffOnePlan(d, tp, pp, panelModified, panelETag, taskETag)
	}
	for i := range panelPlans {
		pp := &panelPlans[i]
		if !seen[pp.ID] {
			if _, existed := indexPlan(t, pp.ID); !existed {
				d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeNewPlan, Target: TargetPlan, ID: pp.ID, NewPlan: pp})
			}
		}
	}
}

func indexPlan(t *task.Task, id string) (*task.Plan, bool) {
	p := t.PlanByID(id)
	return p, p != nil
}

func diffOnePlan(d *Diff, tp *task.Plan, pp *panel.ParsedPlan, panelModified *time.Time, panelETag, taskETag string) {
	if tp.Description != pp.Description {
		if panelModified != nil && !panelModified.IsZero() && !tp.UpdatedAt.IsZero() {
			d.Conflicts = append(d.Conflicts, Conflict{
				PlanID: tp.ID, PanelText: pp.Description, TaskText: tp.Description,
				PanelETag: panelETag, TaskETag: taskETag,
				PanelModified: panelModified, TaskModified: tp.UpdatedAt,
				Reason: conflictReason(panelModified, tp.UpdatedAt),
			})
		} else {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetPlan, ID: tp.ID, Field: "description", NewValue: pp.Description,
			})
		}
	}
	if !stringSliceEqual(tp.Hints, pp.Hints) {
		d.ContentChanges = append(d.ContentChanges, ContentChange{
			Kind: ChangeFieldUpdate, Target: TargetPlan, ID: tp.ID, Field: "hints", NewValue: pp.Hints,
		})
	}
	if !tagsEqual(tp.Tags, pp.Tags) {
		d.ContentChanges = append(d.ContentChanges, ContentChange{
			Kind: ChangeFieldUpdate, Target: TargetPlan, ID: tp.ID, Field: "tags", NewValue: pp.Tags,
		})
	}
	if !stringSliceEqual(tp.EVRBindings, pp.EVRBindings) {
		d.ContentChanges = append(d.ContentChanges, ContentChange{
			Kind: ChangeFieldUpdate, Target: TargetPlan, ID: tp.ID, Field: "evr_bindings", NewValue: pp.EVRBindings,
		})
	}
	if pp.Status != tp.Status {
		d.StatusChanges = append(d.StatusChanges, StatusChange{
			Target: TargetPlan, ID: tp.ID, OldStatus: string(tp.Status), NewStatus: string(pp.Status),
		})
	}

	diffSteps(d, tp, pp.Steps)
}

func diffSteps(d *Diff, tp *task.Plan, panelSteps []panel.ParsedStep) {
	byID := map[string]*panel.ParsedStep{}
	for i := range panelSteps {
		byID[panelSteps[i].ID] = &panelSteps[i]
	}
	seen := map[string]bool{}

	for i := range tp.Steps {
		ts := &tp.Steps[i]
		ps, ok := byID[ts.ID]
		if !ok {
			d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeDeletedStep, Target: TargetStep, ID: ts.ID})
			continue
		}
		seen[ts.ID] = true
		if ts.Description != ps.Description {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetStep, ID: ts.ID, Field: "description", NewValue: ps.Description,
			})
		}
		if !stringSliceEqual(ts.Hints, ps.Hints) {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetStep, ID: ts.ID, Field: "hints", NewValue: ps.Hints,
			})
		}
		if ps.Status != ts.Status {
			d.StatusChanges = append(d.StatusChanges, StatusChange{
				Target: TargetStep, ID: ts.ID, OldStatus: string(ts.Status), NewStatus: string(ps.Status),
			})
		}
	}
	for i := range panelSteps {
		ps := &panelSteps[i]
		if !seen[ps.ID] {
			found := false
			for j := range tp.Steps {
				if tp.Steps[j].ID == ps.ID {
					found = true
					break
				}
			}
			if !found {
				d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeNewStep, Target: TargetStep, ID: ps.ID, PlanID: tp.ID, NewStep: ps})
			}
		}
	}
}

func diffEVRs(d *Diff, t *task.Task, panelEVRs []panel.ParsedEVR) {
	byID := map[string]*panel.ParsedEVR{}
	for i := range panelEVRs {
		byID[panelEVRs[i].ID] = &panelEVRs[i]
	}
	seen := map[string]bool{}

	for i := range t.EVRs {
		te := &t.EVRs[i]
		pe, ok := byID[te.ID]
		if !ok {
			d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeDeletedEVR, Target: TargetEVR, ID: te.ID})
			continue
		}
		seen[te.ID] = true
		if te.Title != pe.Title {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetEVR, ID: te.ID, Field: "title", NewValue: pe.Title,
			})
		}
		if !textOrListEquivalent(te.Verify, pe.Verify) {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetEVR, ID: te.ID, Field: "verify", NewValue: pe.Verify,
			})
		}
		if !textOrListEquivalent(te.Expect, pe.Expect) {
			d.ContentChanges = append(d.ContentChanges, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetEVR, ID: te.ID, Field: "expect", NewValue: pe.Expect,
			})
		}
		if pe.Status != te.Status {
			d.StatusChanges = append(d.StatusChanges, StatusChange{
				Target: TargetEVR, ID: te.ID, OldStatus: string(te.Status), NewStatus: string(pe.Status),
			})
		}
	}
	for i := range panelEVRs {
		pe := &panelEVRs[i]
		if !seen[pe.ID] {
			found := false
			for j := range t.EVRs {
				if t.EVRs[j].ID == pe.ID {
					found = true
					break
				}
			}
			if !found {
				d.ContentChanges = append(d.ContentChanges, ContentChange{Kind: ChangeNewEVR, Target: TargetEVR, ID: pe.ID, NewEVR: pe})
			}
		}
	}
}

// conflictReason keys on timestamp presence: both sides timestamped
// means two genuinely concurrent edits; a missing timestamp on either
// side means the divergence can only be explained by version drift.
func conflictReason(panelModified *time.Time, taskModified time.Time) ConflictReason {
	if panelModified == nil || panelModified.IsZero() || taskModified.IsZero() {
		return ReasonETagMismatch
	}
	return ReasonConcurrentUpdate
}

// textOrListEquivalent compares verify/expect deep-equal including array
// structure, except that at zero or one items the panel's grammar
// cannot express the scalar/list distinction, so shape alone is not a
// difference there.
func textOrListEquivalent(a, b task.TextOrList) bool {
	if !stringSliceEqual(a.Items, b.Items) {
		return false
	}
	if len(a.Items) <= 1 {
		return true
	}
	return a.IsList == b.IsList
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tagsEqual(a, b []task.ContextTag) bool {
	return reflect.DeepEqual(a, b)
}
