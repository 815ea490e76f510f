// Package task defines the structured task aggregate: the authoritative
// record of a project's goal, plans, steps, expected visible results, and
// logs. The panel (see package panel) mirrors this record as Markdown;
// ownership is split per field — task owns status, panel owns content.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the shared lifecycle enum for plans and steps.
type Status string

const (
	StatusToDo       Status = "to_do"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// EVRStatus is the lifecycle enum for an Expected Visible Result.
type EVRStatus string

const (
	EVRPass    EVRStatus = "pass"
	EVRFail    EVRStatus = "fail"
	EVRSkip    EVRStatus = "skip"
	EVRUnknown EVRStatus = "unknown"
)

// EVRClass distinguishes one-shot assertions from evidence that must be
// re-verified close to completion time.
type EVRClass string

const (
	ClassRuntime EVRClass = "runtime"
	ClassStatic  EVRClass = "static"
)

// Actor identifies who produced an EVR run.
type Actor string

const (
	ActorAI   Actor = "ai"
	ActorUser Actor = "user"
	ActorCI   Actor = "ci"
)

// TagKind enumerates the recognized context-tag kinds.
type TagKind string

const (
	TagRef         TagKind = "ref"
	TagDecision    TagKind = "decision"
	TagDiscuss     TagKind = "discuss"
	TagInputs      TagKind = "inputs"
	TagConstraints TagKind = "constraints"
	TagEVR         TagKind = "evr"
	TagUsesEVR     TagKind = "uses_evr"
)

// Glyph is one of the four canonical checkbox markers.
type Glyph rune

const (
	GlyphToDo       Glyph = ' '
	GlyphInProgress Glyph = '-'
	GlyphCompleted  Glyph = 'x'
	GlyphBlocked    Glyph = '!'
)

// GlyphForStatus returns the canonical glyph for a plan/step status.
func GlyphForStatus(s Status) Glyph {
	switch s {
	case StatusInProgress:
		return GlyphInProgress
	case StatusCompleted:
		return GlyphCompleted
	case StatusBlocked:
		return GlyphBlocked
	default:
		return GlyphToDo
	}
}

// StatusForGlyph maps a checkbox glyph to a plan/step status. ok is false
// for a glyph that isn't one of the four canonical markers.
func StatusForGlyph(g Glyph) (Status, bool) {
	switch g {
	case GlyphToDo:
		return StatusToDo, true
	case GlyphInProgress:
		return StatusInProgress, true
	case GlyphCompleted:
		return StatusCompleted, true
	case GlyphBlocked:
		return StatusBlocked, true
	default:
		return "", false
	}
}

// GlyphForEVRStatus returns the canonical glyph for an EVR status.
func GlyphForEVRStatus(s EVRStatus) Glyph {
	switch s {
	case EVRSkip:
		return GlyphInProgress
	case EVRPass:
		return GlyphCompleted
	case EVRFail:
		return GlyphBlocked
	default:
		return GlyphToDo
	}
}

// EVRStatusForGlyph maps a checkbox glyph to an EVR status.
func EVRStatusForGlyph(g Glyph) (EVRStatus, bool) {
	switch g {
	case GlyphToDo:
		return EVRUnknown, true
	case GlyphInProgress:
		return EVRSkip, true
	case GlyphCompleted:
		return EVRPass, true
	case GlyphBlocked:
		return EVRFail, true
	default:
		return "", false
	}
}

// ContextTag is a (kind, value) annotation attached to a plan or step.
type ContextTag struct {
	Kind  TagKind `json:"kind"`
	Value string  `json:"value"`
}

// Run is one recorded verification of an EVR.
type Run struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Status    EVRStatus `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Proof     string    `json:"proof,omitempty"`
}

// TextOrList models the source's "string or list of strings" duck type as
// a tagged union that preserves shape across parse/render round-trips
// a single-item list never collapses to a scalar, and a
// scalar never expands into a one-item list unless the panel actually
// wrote it as a list.
type TextOrList struct {
	// IsList is true if this value was written/should render as a list,
	// even if it holds zero or one items.
	IsList bool
	Items  []string
}

// Scalar builds a TextOrList representing a single bare string.
func Scalar(s string) TextOrList { return TextOrList{IsList: false, Items: []string{s}} }

// List builds a TextOrList representing an ordered list of strings.
func List(items ...string) TextOrList { return TextOrList{IsList: true, Items: items} }

// String returns the first item, or "" if empty.
func (t TextOrList) String() string {
	if len(t.Items) == 0 {
		return ""
	}
	return t.Items[0]
}

// MarshalJSON encodes a scalar as a bare JSON string and a list as a
// JSON array, matching the panel's own duck typing for verify/expect.
func (t TextOrList) MarshalJSON() ([]byte, error) {
	if t.IsList {
		if t.Items == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(t.Items)
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either shape and records which one was given.
func (t *TextOrList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*t = TextOrList{}
			return nil
		}
		*t = Scalar(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("task: verify/expect must be a string or an array of strings")
	}
	*t = List(list...)
	return nil
}

// Equal reports deep equality including the list/scalar distinction.
func (t TextOrList) Equal(o TextOrList) bool {
	if t.IsList != o.IsList || len(t.Items) != len(o.Items) {
		return false
	}
	for i := range t.Items {
		if t.Items[i] != o.Items[i] {
			return false
		}
	}
	return true
}

// EVR is an Expected Visible Result.
type EVR struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Verify       TextOrList `json:"verify"`
	Expect       TextOrList `json:"expect"`
	Status       EVRStatus  `json:"status"`
	Class        EVRClass   `json:"class"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Proof        string     `json:"proof,omitempty"`
	ReferencedBy []string   `json:"referenced_by"`
	Runs         []Run      `json:"runs"`
}

// MostRecentRun returns the last entry of Runs, or nil if there are none.
func (e *EVR) MostRecentRun() *Run {
	if len(e.Runs) == 0 {
		return nil
	}
	return &e.Runs[len(e.Runs)-1]
}

// RecordRun appends a run and recomputes Status/LastRun from it, per the
// invariant that status always equals the most recent run's status.
func (e *EVR) RecordRun(r Run) {
	e.Runs = append(e.Runs, r)
	last := e.Runs[len(e.Runs)-1]
	e.Status = last.Status
	ts := last.Timestamp
	e.LastRun = &ts
	if last.Notes != "" {
		e.Notes = last.Notes
	}
	if last.Proof != "" {
		e.Proof = last.Proof
	}
}

// Step is a leaf unit of work within a Plan.
type Step struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Evidence    string       `json:"evidence,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Hints       []string     `json:"hints,omitempty"`
	UsesEVR     []string     `json:"uses_evr,omitempty"`
	Tags        []ContextTag `json:"tags,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Plan is an ordered unit of work composed of Steps.
type Plan struct {
	ID           string       `json:"id"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	Evidence     string       `json:"evidence,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	Hints        []string     `json:"hints,omitempty"`
	Steps        []Step       `json:"steps,omitempty"`
	EVRBindings  []string     `json:"evr_bindings,omitempty"`
	Tags         []ContextTag `json:"tags,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	// InProgressAt is when the plan's status most recently transitioned to
	// in_progress; used by the EVR gate's runtime-staleness check.
	InProgressAt *time.Time `json:"in_progress_at,omitempty"`
}

// Provenance links a task back to the repository state it was created in.
type Provenance struct {
	Repo        string   `json:"repo,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	CommitRange string   `json:"commit_range,omitempty"`
	IssueLinks  []string `json:"issue_links,omitempty"`
}

// LogEntry is one append-only log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	AINotes   string    `json:"ai_notes,omitempty"`
}

// Fingerprints is the per-section content-hash mapping behind md_version.
type Fingerprints struct {
	Title        string            `json:"title"`
	Requirements string            `json:"requirements"`
	Issues       string            `json:"issues"`
	Hints        string            `json:"hints"`
	Logs         string            `json:"logs"`
	Plans        map[string]string `json:"plans"`
	EVRs         map[string]string `json:"evrs"`
}

// NewFingerprints returns an empty Fingerprints with initialized maps.
func NewFingerprints() Fingerprints {
	return Fingerprints{Plans: map[string]string{}, EVRs: map[string]string{}}
}

// Task is the aggregate root.
type Task struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Slug          string       `json:"slug"`
	Goal          string       `json:"goal"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Provenance    *Provenance  `json:"provenance,omitempty"`
	Hints         []string     `json:"hints,omitempty"`
	Requirements  []string     `json:"requirements,omitempty"`
	Issues        []string     `json:"issues,omitempty"`
	Plans         []Plan       `json:"plans"`
	CurrentPlanID string       `json:"current_plan_id,omitempty"`
	EVRs          []EVR        `json:"evrs"`
	Logs          []LogEntry   `json:"logs"`
	ETag          string       `json:"etag,omitempty"`
	Fingerprints  Fingerprints `json:"fingerprints"`
	Version       int          `json:"version"`
	ModifiedBy    string       `json:"modified_by,omitempty"`
}

// Completed reports whether the task has finished its lifecycle.
func (t *Task) Completed() bool { return t.CompletedAt != nil }

// NewID mints a new ULID-based, lexically sortable task identifier.
func NewID() string {
	return ulid.Make().String()
}

// PlanByID returns a pointer to the plan with the given id, or nil.
func (t *Task) PlanByID(id string) *Plan {
	for i := range t.Plans {
		if t.Plans[i].ID == id {
			return &t.Plans[i]
		}
	}
	return nil
}

// StepByID returns the step and its owning plan for the given step id.
func (t *Task) StepByID(id string) (*Plan, *Step) {
	for i := range t.Plans {
		for j := range t.Plans[i].Steps {
			if t.Plans[i].Steps[j].ID == id {
				return &t.Plans[i], &t.Plans[i].Steps[j]
			}
		}
	}
	return nil, nil
}

// EVRByID returns a pointer to the EVR with the given id, or nil.
func (t *Task) EVRByID(id string) *EVR {
	for i := range t.EVRs {
		if t.EVRs[i].ID == id {
			return &t.EVRs[i]
		}
	}
	return nil
}

// RebuildReferencedBy re-derives every EVR's referencedBy set from the
// plans' evrBindings, keeping the id-indexed lookups consistent after
// bindings or plans changed (referencedBy is derived, never authored).
func (t *Task) RebuildReferencedBy() {
	refs := map[string][]string{}
	for i := range t.Plans {
		p := &t.Plans[i]
		for _, evrID := range p.EVRBindings {
			refs[evrID] = append(refs[evrID], p.ID)
		}
	}
	for i := range t.EVRs {
		t.EVRs[i].ReferencedBy = refs[t.EVRs[i].ID]
	}
}

// SetCurrentPlan enforces the invariant that exactly one plan holds
// `current` status: it is tracked via CurrentPlanID rather than a status
// value (current is orthogonal to to_do/in_progress/completed/blocked —
// it answers "which in_progress plan is active", so it's its own field).
func (t *Task) SetCurrentPlan(id string) {
	t.CurrentPlanID = id
}
