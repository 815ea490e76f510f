// Package guidance computes the `next_action` / advisory hints attached
// to `project_info` and `current_task_read` responses: given the current
// session/task state, what should the caller do next, and is anything
// blocking it. Findings carry a severity so a hard block (no project
// bound) outranks a warning (unsynced panel edits) outranks a plain
// suggestion (no plan in progress yet).
package guidance

import (
	"fmt"
	"strings"
)

// Severity indicates how a finding affects the caller.
type Severity int

const (
	// Suggestion is advisory; the operation already succeeded.
	Suggestion Severity = iota
	// Warning is advisory; the operation already succeeded.
	Warning
	// SoftBlock would stop a mutating operation unless overridden.
	SoftBlock
	// HardBlock stops a mutating operation unconditionally.
	HardBlock
)

func (s Severity) String() string {
	switch s {
	case Suggestion:
		return "SUGGESTION"
	case Warning:
		return "WARNING"
	case SoftBlock:
		return "SOFT_BLOCK"
	case HardBlock:
		return "HARD_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// Finding is one guidance check's outcome.
type Finding struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message,omitempty"`
	Action   string   `json:"action,omitempty"` // suggested next_action tool name
}

// Pass reports a finding that needed no attention.
func Pass(name string) Finding { return Finding{Name: name, Passed: true} }

// Fail reports a finding needing attention, with the tool name a caller
// should invoke next.
func Fail(name string, sev Severity, message, action string) Finding {
	return Finding{Name: name, Passed: false, Severity: sev, Message: message, Action: action}
}

// Outcome aggregates every finding produced for one response.
type Outcome struct {
	Blocked  bool      `json:"blocked"`
	Findings []Finding `json:"findings,omitempty"`
}

// Add appends a finding, raising Blocked if it's a hard block.
func (o *Outcome) Add(f Finding) {
	o.Findings = append(o.Findings, f)
	if !f.Passed && f.Severity == HardBlock {
		o.Blocked = true
	}
}

// NextAction picks the single next_action hint surfaced to the caller:
// the first hard block's action if blocked, else the first failing
// finding's action in severity order, else "" (nothing to do).
func (o *Outcome) NextAction() string {
	for _, sev := range []Severity{HardBlock, SoftBlock, Warning, Suggestion} {
		for _, f := range o.Findings {
			if !f.Passed && f.Severity == sev && f.Action != "" {
				return f.Action
			}
		}
	}
	return ""
}

// Messages renders every non-passing finding as one line per finding, for
// a human-readable advisory summary alongside the structured Findings.
func (o *Outcome) Messages() []string {
	var out []string
	for _, f := range o.Findings {
		if f.Passed {
			continue
		}
		out = append(out, fmt.Sprintf("[%s] %s: %s", f.Severity, f.Name, f.Message))
	}
	return out
}

// FormatSummary joins Messages into a single string, or "" if clean.
func (o *Outcome) FormatSummary() string {
	msgs := o.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return strings.Join(msgs, "\n")
}

// SessionState is the subset of session/task state guidance needs;
// callers (the tools package) populate it from the project registry and
// task aggregate rather than guidance importing those packages directly,
// keeping this package a pure decision layer.
type SessionState struct {
	ProjectBound  bool
	HasActiveTask bool
	PanelPending  bool
	TaskGateOK    bool
	PendingEVRs   int
	PlanInFlight  bool
}

// ForProjectInfo computes the guidance outcome for `project_info`.
func ForProjectInfo(s SessionState) Outcome {
	var o Outcome
	if !s.ProjectBound {
		o.Add(Fail("project_bound", HardBlock, "no project connected yet", "connect_project"))
		return o
	}
	o.Add(Pass("project_bound"))
	if !s.HasActiveTask {
		o.Add(Fail("active_task", Suggestion, "no active task; start one to begin tracking work", "current_task_init"))
		return o
	}
	o.Add(Pass("active_task"))
	addTaskFindings(&o, s)
	return o
}

// ForCurrentTaskRead computes the guidance outcome for `current_task_read`.
func ForCurrentTaskRead(s SessionState) Outcome {
	var o Outcome
	if !s.ProjectBound {
		o.Add(Fail("project_bound", HardBlock, "no project connected yet", "connect_project"))
		return o
	}
	if !s.HasActiveTask {
		o.Add(Fail("active_task", HardBlock, "no active task", "current_task_init"))
		return o
	}
	addTaskFindings(&o, s)
	return o
}

func addTaskFindings(o *Outcome, s SessionState) {
	if s.PanelPending {
		o.Add(Fail("panel_pending", Warning, "current.md has unsynced edits", "current_task_read"))
	} else {
		o.Add(Pass("panel_pending"))
	}
	if !s.TaskGateOK && s.PendingEVRs > 0 {
		o.Add(Fail("evr_gate", Warning, fmt.Sprintf("%d EVR(s) not ready", s.PendingEVRs), "current_task_update"))
	} else {
		o.Add(Pass("evr_gate"))
	}
	if !s.PlanInFlight {
		o.Add(Fail("plan_in_flight", Suggestion, "no plan currently in progress", "current_task_update"))
	} else {
		o.Add(Pass("plan_in_flight"))
	}
}
