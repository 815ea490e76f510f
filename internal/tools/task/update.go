package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wavemcp/wavemcp/internal/evr"
	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

type evrRunParams struct {
	Status task.EVRStatus `json:"status"`
	Actor  task.Actor     `json:"actor"`
	Notes  string         `json:"notes,omitempty"`
	Proof  string         `json:"proof,omitempty"`
}

type currentTaskUpdateParams struct {
	Target string        `json:"target"`
	ID     string        `json:"id"`
	Status task.Status   `json:"status,omitempty"`
	Run    *evrRunParams `json:"run,omitempty"`
}

// CurrentTaskUpdate implements current_task_update: flips a
// plan/step status or records an EVR verification run. Plan completion is
// blocked by the plan gate until every bound EVR is ready.
type CurrentTaskUpdate struct {
	registry     *project.Registry
	store        *task.Store
	session      *session.State
	requireRerun bool
}

// NewCurrentTaskUpdate constructs a CurrentTaskUpdate tool.
func NewCurrentTaskUpdate(registry *project.Registry, store *task.Store, sess *session.State, requireRerun bool) *CurrentTaskUpdate {
	return &CurrentTaskUpdate{registry: registry, store: store, session: sess, requireRerun: requireRerun}
}

func (t *CurrentTaskUpdate) Name() string { return "current_task_update" }

func (t *CurrentTaskUpdate) Description() string {
	return "Change a plan or step's status, or record an Expected Visible Result verification run. Completing a plan bound to an unready EVR is blocked."
}

func (t *CurrentTaskUpdate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "target": {"type": "string", "enum": ["plan", "step", "evr"]},
    "id": {"type": "string", "description": "Plan, step, or EVR id"},
    "status": {"type": "string", "enum": ["to_do", "in_progress", "completed", "blocked"], "description": "Required for target plan/step"},
    "run": {
      "type": "object",
      "description": "Required for target evr: records one verification run",
      "properties": {
        "status": {"type": "string", "enum": ["pass", "fail", "skip", "unknown"]},
        "actor": {"type": "string", "enum": ["ai", "user", "ci"]},
        "notes": {"type": "string"},
        "proof": {"type": "string"}
      },
      "required": ["status", "actor"]
    }
  },
  "required": ["target", "id"]
}`)
}

func (t *CurrentTaskUpdate) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskUpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Target == "" || p.ID == "" {
		return mcp.ErrorResult("target and id are required"), nil
	}

	_, proj, terr := toolkit.RequireActiveTask(t.session, t.registry)
	if terr != nil {
		return toolkit.Failure(terr)
	}

	cur, err := t.store.Load(ctx, proj.ActiveTaskDir, proj.ActiveTaskID)
	if err != nil {
		return nil, fmt.Errorf("current_task_update: load: %w", err)
	}

	var evrForNode []string
	mutated, err := t.store.Mutate(ctx, proj.ActiveTaskDir, proj.ActiveTaskID, cur.Version, "ai", func(fresh *task.Task) error {
		if fresh.Completed() {
			return task.NewError(task.CodeInvalidStateTransition, "task is completed; no further mutations", nil)
		}
		switch p.Target {
		case "plan":
			return t.updatePlan(fresh, p, &evrForNode)
		case "step":
			return t.updateStep(fresh, p)
		case "evr":
			return t.updateEVR(fresh, p)
		default:
			return task.NewError(task.CodeInvalidStateTransition, fmt.Sprintf("unknown target %q", p.Target), nil)
		}
	})
	if err != nil {
		var terr *task.Error
		if errors.As(err, &terr) {
			return toolkit.Failure(terr)
		}
		if errors.Is(err, task.ErrVersionConflict) {
			return toolkit.Failure(task.NewError(task.CodeVersionConflict, "task changed concurrently; reload and retry", nil))
		}
		return nil, fmt.Errorf("current_task_update: %w", err)
	}

	fields := map[string]any{"task": mutated}
	if len(evrForNode) > 0 {
		fields["evr_for_node"] = evrForNode
	}
	return toolkit.Success(fields)
}

func (t *CurrentTaskUpdate) updatePlan(fresh *task.Task, p currentTaskUpdateParams, evrForNode *[]string) error {
	plan := fresh.PlanByID(p.ID)
	if plan == nil {
		return fmt.Errorf("current_task_update: plan %q not found", p.ID)
	}
	if p.Status == "" {
		return task.NewError(task.CodeInvalidStateTransition, "status is required for target plan", nil)
	}
	if !isValidTransition(plan.Status, p.Status) {
		return task.NewError(task.CodeInvalidStateTransition,
			fmt.Sprintf("plan %s cannot move from %s to %s", plan.ID, plan.Status, p.Status), nil)
	}
	if p.Status == task.StatusCompleted {
		if ok, pending := evr.PlanGate(fresh, plan, t.requireRerun); !ok {
			ids := pendingIDs(pending)
			return task.NewError(task.CodePlanGateBlocked, evr.FormatPendingMessage(pending),
				&task.Recovery{Data: map[string]any{"evr_for_plan": ids}})
		}
	}
	now := time.Now().UTC()
	plan.Status = p.Status
	plan.UpdatedAt = now
	switch p.Status {
	case task.StatusInProgress:
		plan.InProgressAt = &now
		fresh.SetCurrentPlan(plan.ID)
		*evrForNode = evr.EVRForNode(plan)
	default:
		if fresh.CurrentPlanID == plan.ID {
			fresh.SetCurrentPlan("")
		}
	}
	return nil
}

func (t *CurrentTaskUpdate) updateStep(fresh *task.Task, p currentTaskUpdateParams) error {
	_, step := fresh.StepByID(p.ID)
	if step == nil {
		return fmt.Errorf("current_task_update: step %q not found", p.ID)
	}
	if p.Status == "" {
		return task.NewError(task.CodeInvalidStateTransition, "status is required for target step", nil)
	}
	if !isValidTransition(step.Status, p.Status) {
		return task.NewError(task.CodeInvalidStateTransition,
			fmt.Sprintf("step %s cannot move from %s to %s", step.ID, step.Status, p.Status), nil)
	}
	step.Status = p.Status
	step.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *CurrentTaskUpdate) updateEVR(fresh *task.Task, p currentTaskUpdateParams) error {
	e := fresh.EVRByID(p.ID)
	if e == nil {
		return fmt.Errorf("current_task_update: evr %q not found", p.ID)
	}
	if p.Run == nil {
		return task.NewError(task.CodeEVRValidationFailed, "run is required for target evr", nil)
	}
	if !validEVRStatus(p.Run.Status) {
		return task.NewError(task.CodeEVRValidationFailed, fmt.Sprintf("invalid run status %q", p.Run.Status), nil)
	}
	if !validActor(p.Run.Actor) {
		return task.NewError(task.CodeEVRValidationFailed, fmt.Sprintf("invalid run actor %q", p.Run.Actor), nil)
	}
	e.RecordRun(task.Run{
		Timestamp: time.Now().UTC(),
		Actor:     p.Run.Actor,
		Status:    p.Run.Status,
		Notes:     p.Run.Notes,
		Proof:     p.Run.Proof,
	})
	return nil
}

func pendingIDs(pending []evr.PendingEVR) []string {
	ids := make([]string, len(pending))
	for i, pe := range pending {
		ids[i] = pe.EVRID
	}
	return ids
}

func validEVRStatus(s task.EVRStatus) bool {
	switch s {
	case task.EVRPass, task.EVRFail, task.EVRSkip, task.EVRUnknown:
		return true
	default:
		return false
	}
}

func validActor(a task.Actor) bool {
	switch a {
	case task.ActorAI, task.ActorUser, task.ActorCI:
		return true
	default:
		return false
	}
}
