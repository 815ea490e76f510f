package evr

import (
	"fmt"

	"github.com/wavemcp/wavemcp/internal/task"
)

// RequireRerunAfterPlanStartDefault mirrors the default for the
// `[evr] require_rerun_after_plan_start` config knob. The gate functions
// take the flag explicitly so this package stays free of any config
// dependency; callers (the config package) reference this constant for
// their own default.
const RequireRerunAfterPlanStartDefault = true

// RuntimeReady reports whether a runtime-class EVR's verification is
// fresh enough to satisfy the gate: a
// static EVR is always ready once it has a single pass run; a runtime
// EVR additionally needs either a pass run timestamped at or after the
// owning plan's most recent transition to in_progress, or at least two
// runs with the latest being pass.
func RuntimeReady(e *task.EVR, owningPlan *task.Plan, requireRerun bool) bool {
	if e.Class != task.ClassRuntime || !requireRerun {
		return true
	}
	if e.Status != task.EVRPass {
		return true // freshness is irrelevant to a non-pass status
	}
	if len(e.Runs) >= 2 {
		return true
	}
	if owningPlan == nil || owningPlan.InProgressAt == nil {
		return false
	}
	last := e.MostRecentRun()
	if last == nil {
		return false
	}
	return !last.Timestamp.Before(*owningPlan.InProgressAt)
}

// PendingEVR names one EVR blocking a gate, with the reason.
type PendingEVR struct {
	EVRID  string
	Reason UnreadyReason
}

// PlanGate checks whether plan p may transition to completed: every EVR
// id in p.EVRBindings must be in {pass, skip-with-reason}, and runtime
// EVRs must additionally pass the freshness check.
func PlanGate(t *task.Task, p *task.Plan, requireRerun bool) (ok bool, pending []PendingEVR) {
	for _, evrID := range p.EVRBindings {
		e := t.EVRByID(evrID)
		if e == nil {
			pending = append(pending, PendingEVR{EVRID: evrID, Reason: ReasonStatusUnknown})
			continue
		}
		if reason := UnreadyReasonFor(e); reason != "" {
			pending = append(pending, PendingEVR{EVRID: evrID, Reason: reason})
			continue
		}
		if !RuntimeReady(e, p, requireRerun) {
			pending = append(pending, PendingEVR{EVRID: evrID, Reason: ReasonStatusUnknown})
		}
	}
	return len(pending) == 0, pending
}

// TaskGate checks whether the whole task may transition to completed:
// every EVR on the task must be ready, using each EVR's owning plan (the
// first plan whose EVRBindings references it) for freshness checks.
func TaskGate(t *task.Task, requireRerun bool) (ok bool, pending []PendingEVR, summary Summary) {
	summary = Summarize(t)
	owner := owningPlans(t)
	for i := range t.EVRs {
		e := &t.EVRs[i]
		if reason := UnreadyReasonFor(e); reason != "" {
			pending = append(pending, PendingEVR{EVRID: e.ID, Reason: reason})
			continue
		}
		if !RuntimeReady(e, owner[e.ID], requireRerun) {
			pending = append(pending, PendingEVR{EVRID: e.ID, Reason: ReasonStatusUnknown})
		}
	}
	return len(pending) == 0, pending, summary
}

func owningPlans(t *task.Task) map[string]*task.Plan {
	m := map[string]*task.Plan{}
	for i := range t.Plans {
		p := &t.Plans[i]
		for _, id := range p.EVRBindings {
			if _, exists := m[id]; !exists {
				m[id] = p
			}
		}
	}
	return m
}

// EVRForNode returns the bound EVR ids to surface as `evr_for_node` when a
// plan transitions to in_progress.
func EVRForNode(p *task.Plan) []string { return p.EVRBindings }

// FormatPendingMessage renders a human-readable summary of pending EVRs
// for error messages (PLAN_GATE_BLOCKED / EVR_NOT_READY recovery text).
func FormatPendingMessage(pending []PendingEVR) string {
	if len(pending) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d EVR(s) not ready:", len(pending))
	for _, p := range pending {
		msg += fmt.Sprintf(" %s(%s)", p.EVRID, p.Reason)
	}
	return msg
}
