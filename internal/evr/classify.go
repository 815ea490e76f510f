// Package evr implements the EVR validator and gate: classification
// of expected-visible-result state, and the plan/task completion gates
// that block a transition until every bound EVR is ready.
package evr

import "github.com/wavemcp/wavemcp/internal/task"

// Classification is the bucket an EVR falls into relative to a reference
// plan set.
type Classification string

const (
	ClassPassed       Classification = "passed"
	ClassFailed       Classification = "failed"
	ClassSkipped      Classification = "skipped"
	ClassUnknown      Classification = "unknown"
	ClassUnreferenced Classification = "unreferenced"
)

// UnreadyReason is why an EVR isn't gate-ready, carried on Summary and on
// PLAN_GATE_BLOCKED/EVR_NOT_READY recovery payloads.
type UnreadyReason string

const (
	ReasonStatusUnknown    UnreadyReason = "status_unknown"
	ReasonFailed           UnreadyReason = "failed"
	ReasonNeedReasonSkip   UnreadyReason = "need_reason_for_skip"
)

// Classify buckets one EVR, applying the skip-requires-reason rule: a
// `skip` status is only admissible when the most recent run carries
// non-empty notes; otherwise it is reported `unknown` with reason
// need_reason_for_skip.
func Classify(e *task.EVR) Classification {
	switch e.Status {
	case task.EVRPass:
		return ClassPassed
	case task.EVRFail:
		return ClassFailed
	case task.EVRSkip:
		if skipHasReason(e) {
			return ClassSkipped
		}
		return ClassUnknown
	default:
		return ClassUnknown
	}
}

func skipHasReason(e *task.EVR) bool {
	last := e.MostRecentRun()
	if last == nil {
		return e.Notes != ""
	}
	return last.Notes != ""
}

// UnreadyReasonFor returns the reason an EVR is not yet gate-ready, or ""
// if it is ready (pass, or skip-with-reason).
func UnreadyReasonFor(e *task.EVR) UnreadyReason {
	switch e.Status {
	case task.EVRPass:
		return ""
	case task.EVRSkip:
		if skipHasReason(e) {
			return ""
		}
		return ReasonNeedReasonSkip
	case task.EVRFail:
		return ReasonFailed
	default:
		return ReasonStatusUnknown
	}
}

// Ready reports whether an EVR satisfies the plan/task gate rule: status
// in {pass, skip-with-reason}.
func Ready(e *task.EVR) bool { return UnreadyReasonFor(e) == "" }

// Summary is the `{total, passed[], skipped[], failed[], unknown[],
// unreferenced[]}` structure returned with reads and completions.
type Summary struct {
	Total        int
	Passed       []string
	Skipped      []string
	Failed       []string
	Unknown      []string
	Unreferenced []string
}

// Summarize classifies every EVR on the task and reports unreferenced
// EVRs (referencedBy empty) separately — this is informational, not
// blocking.
func Summarize(t *task.Task) Summary {
	s := Summary{Total: len(t.EVRs)}
	for i := range t.EVRs {
		e := &t.EVRs[i]
		switch Classify(e) {
		case ClassPassed:
			s.Passed = append(s.Passed, e.ID)
		case ClassSkipped:
			s.Skipped = append(s.Skipped, e.ID)
		case ClassFailed:
			s.Failed = append(s.Failed, e.ID)
		case ClassUnknown:
			s.Unknown = append(s.Unknown, e.ID)
		}
		if len(e.ReferencedBy) == 0 {
			s.Unreferenced = append(s.Unreferenced, e.ID)
		}
	}
	return s
}
