package sync

import (
	"time"

	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/task"
)

// AuditEntry is one append-only record of what the apply engine did,
// one entry per conflict batch and one per applied-change batch.
type AuditEntry struct {
	Type         string // "conflict" or "sync"
	Strategy     Strategy
	Count        int
	Resolutions  []ResolvedConflict
	ChangesCount int
	Changes      []AppliedChange
	AffectedIDs  []string
	At           time.Time
}

// AppliedChange is the compact per-change audit projection.
type AppliedChange struct {
	Section string
	Field   string
	Source  string
}

// Result is what Apply returns.
type Result struct {
	Applied     []ContentChange
	Conflicts   []ResolvedConflict
	AuditEntries []AuditEntry
	MDVersion   string
}

// Apply runs the resolver over every conflict in diff, drops content
// changes whose matching conflict resolved to "ours", applies the rest
// to t in memory, and returns the full result including the new
// md_version. It does not persist t — callers (the task store)
// are responsible for writing it out under lock.
func Apply(diff Diff, t *task.Task, strategy Strategy, skew time.Duration, now time.Time) Result {
	var resolved []ResolvedConflict
	conflictByPlan := map[string]ResolvedConflict{}
	for _, c := range diff.Conflicts {
		rc := Resolve(c, strategy, skew)
		resolved = append(resolved, rc)
		conflictByPlan[c.PlanID] = rc
	}

	// A conflicting description is carried only in diff.Conflicts; when the
	// panel wins, it becomes a content change like any other.
	changes := append([]ContentChange(nil), diff.ContentChanges...)
	for _, rc := range resolved {
		if rc.Resolution == ResolutionTheirs {
			changes = append(changes, ContentChange{
				Kind: ChangeFieldUpdate, Target: TargetPlan, ID: rc.Conflict.PlanID,
				Field: "description", NewValue: rc.Conflict.PanelText,
			})
		}
	}

	var applied []ContentChange
	var affected []string
	for _, ch := range changes {
		if rc, ok := conflictByPlan[ch.ID]; ok && ch.Target == TargetPlan && ch.Field == "description" {
			if rc.Resolution == ResolutionOurs {
				continue
			}
		}
		ch.AppliedAt = now
		applyOne(t, ch)
		applied = append(applied, ch)
		affected = append(affected, ch.ID)
	}

	var entries []AuditEntry
	if len(resolved) > 0 {
		entries = append(entries, AuditEntry{
			Type: "conflict", Strategy: strategy, Count: len(resolved),
			Resolutions: resolved, AffectedIDs: conflictIDs(resolved), At: now,
		})
	}
	if len(applied) > 0 {
		entries = append(entries, AuditEntry{
			Type: "sync", ChangesCount: len(applied), Changes: compactChanges(applied),
			AffectedIDs: affected, At: now,
		})
	}

	if len(applied) > 0 {
		t.RebuildReferencedBy()
	}

	t.Fingerprints = panel.Fingerprint(t)
	mdVersion := panel.AggregateVersion(t.Fingerprints)

	return Result{Applied: applied, Conflicts: resolved, AuditEntries: entries, MDVersion: mdVersion}
}

func conflictIDs(rs []ResolvedConflict) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.Conflict.PlanID
	}
	return ids
}

func compactChanges(cs []ContentChange) []AppliedChange {
	out := make([]AppliedChange, len(cs))
	for i, c := range cs {
		out[i] = AppliedChange{Section: string(c.Target), Field: c.Field, Source: "panel"}
	}
	return out
}

// applyOne writes one content change into the task aggregate. Status
// changes are never passed here — the sync engine only ever calls this
// with changes drawn from diff.ContentChanges, which never includes
// status.
func applyOne(t *task.Task, ch ContentChange) {
	switch ch.Target {
	case TargetTitle:
		if v, ok := ch.NewValue.(string); ok {
			t.Title = v
		}
	case TargetRequirements:
		if v, ok := ch.NewValue.([]string); ok {
			t.Requirements = v
		}
	case TargetIssues:
		if v, ok := ch.NewValue.([]string); ok {
			t.Issues = v
		}
	case TargetHints:
		if v, ok := ch.NewValue.([]string); ok {
			t.Hints = v
		}
	case TargetPlan:
		applyPlanChange(t, ch)
	case TargetStep:
		applyStepChange(t, ch)
	case TargetEVR:
		applyEVRChange(t, ch)
	}
}

func applyPlanChange(t *task.Task, ch ContentChange) {
	switch ch.Kind {
	case ChangeNewPlan:
		if ch.NewPlan == nil {
			return
		}
		np := ch.NewPlan
		t.Plans = append(t.Plans, task.Plan{
			ID: np.ID, Description: np.Description, Status: task.StatusToDo,
			Hints: np.Hints, Tags: np.Tags, EVRBindings: np.EVRBindings,
		})
		return
	case ChangeDeletedPlan:
		for i := range t.Plans {
			if t.Plans[i].ID == ch.ID {
				t.Plans = append(t.Plans[:i], t.Plans[i+1:]...)
				return
			}
		}
		return
	}
	p := t.PlanByID(ch.ID)
	if p == nil {
		return
	}
	switch ch.Field {
	case "description":
		if v, ok := ch.NewValue.(string); ok {
			p.Description = v
		}
	case "hints":
		if v, ok := ch.NewValue.([]string); ok {
			p.Hints = v
		}
	case "tags":
		if v, ok := ch.NewValue.([]task.ContextTag); ok {
			p.Tags = v
		}
	case "evr_bindings":
		if v, ok := ch.NewValue.([]string); ok {
			p.EVRBindings = v
		}
	}
}

func applyStepChange(t *task.Task, ch ContentChange) {
	switch ch.Kind {
	case ChangeNewStep:
		if ch.NewStep == nil {
			return
		}
		ns := ch.NewStep
		p := t.PlanByID(ch.PlanID)
		if p == nil {
			return
		}
		p.Steps = append(p.Steps, task.Step{
			ID: ns.ID, Description: ns.Description, Status: task.StatusToDo,
			Hints: ns.Hints, Tags: ns.Tags, UsesEVR: ns.UsesEVR,
		})
		return
	case ChangeDeletedStep:
		for i := range t.Plans {
			steps := t.Plans[i].Steps
			for j := range steps {
				if steps[j].ID == ch.ID {
					t.Plans[i].Steps = append(steps[:j], steps[j+1:]...)
					return
				}
			}
		}
		return
	}
	_, s := t.StepByID(ch.ID)
	if s == nil {
		return
	}
	switch ch.Field {
	case "description":
		if v, ok := ch.NewValue.(string); ok {
			s.Description = v
		}
	case "hints":
		if v, ok := ch.NewValue.([]string); ok {
			s.Hints = v
		}
	}
}

func applyEVRChange(t *task.Task, ch ContentChange) {
	switch ch.Kind {
	case ChangeNewEVR:
		if ch.NewEVR == nil {
			return
		}
		ne := ch.NewEVR
		t.EVRs = append(t.EVRs, task.EVR{
			ID: ne.ID, Title: ne.Title, Verify: ne.Verify, Expect: ne.Expect, Status: task.EVRUnknown,
		})
		return
	case ChangeDeletedEVR:
		for i := range t.EVRs {
			if t.EVRs[i].ID == ch.ID {
				t.EVRs = append(t.EVRs[:i], t.EVRs[i+1:]...)
				return
			}
		}
		return
	}
	e := t.EVRByID(ch.ID)
	if e == nil {
		return
	}
	switch ch.Field {
	case "title":
		if v, ok := ch.NewValue.(string); ok {
			e.Title = v
		}
	case "verify":
		if v, ok := ch.NewValue.(task.TextOrList); ok {
			e.Verify = v
		}
	case "expect":
		if v, ok := ch.NewValue.(task.TextOrList); ok {
			e.Expect = v
		}
	}
}
