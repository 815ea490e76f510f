package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

type planModifyParams struct {
	ID          string            `json:"id,omitempty"`
	Description string            `json:"description,omitempty"`
	Hints       []string          `json:"hints,omitempty"`
	Tags        []task.ContextTag `json:"tags,omitempty"`
	EVRBindings []string          `json:"evr_bindings,omitempty"`
	Remove      bool              `json:"remove,omitempty"`
}

type stepModifyParams struct {
	PlanID      string   `json:"plan_id"`
	ID          string   `json:"id,omitempty"`
	Description string   `json:"description,omitempty"`
	Hints       []string `json:"hints,omitempty"`
	UsesEVR     []string `json:"uses_evr,omitempty"`
	Remove      bool     `json:"remove,omitempty"`
}

type evrModifyParams struct {
	ID     string          `json:"id,omitempty"`
	PlanID string          `json:"plan_id,omitempty"`
	Title  string          `json:"title,omitempty"`
	Verify json.RawMessage `json:"verify,omitempty"`
	Expect json.RawMessage `json:"expect,omitempty"`
	Class  task.EVRClass   `json:"class,omitempty"`
	Remove bool            `json:"remove,omitempty"`
}

type currentTaskModifyParams struct {
	Goal         *string           `json:"goal,omitempty"`
	Hints        []string          `json:"hints,omitempty"`
	Requirements []string          `json:"requirements,omitempty"`
	Issues       []string          `json:"issues,omitempty"`
	Plan         *planModifyParams `json:"plan,omitempty"`
	Step         *stepModifyParams `json:"step,omitempty"`
	EVR          *evrModifyParams  `json:"evr,omitempty"`
}

// CurrentTaskModify implements current_task_modify: edits
// content fields (goal, hints, requirements, issues, plan/step text) and
// creates/removes EVRs. Content is panel-owned territory, but this
// tool lets the AI write it directly rather than only through a panel
// edit + sync round trip.
type CurrentTaskModify struct {
	registry *project.Registry
	store    *task.Store
	session  *session.State
}

// NewCurrentTaskModify constructs a CurrentTaskModify tool.
func NewCurrentTaskModify(registry *project.Registry, store *task.Store, sess *session.State) *CurrentTaskModify {
	return &CurrentTaskModify{registry: registry, store: store, session: sess}
}

func (t *CurrentTaskModify) Name() string { return "current_task_modify" }

func (t *CurrentTaskModify) Description() string {
	return "Edit content fields (goal, hints, requirements, issues, plan/step text) and create or remove Expected Visible Results."
}

func (t *CurrentTaskModify) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "goal": {"type": "string"},
    "hints": {"type": "array", "items": {"type": "string"}},
    "requirements": {"type": "array", "items": {"type": "string"}},
    "issues": {"type": "array", "items": {"type": "string"}},
    "plan": {
      "type": "object",
      "properties": {
        "id": {"type": "string", "description": "Omit to create a new plan"},
        "description": {"type": "string"},
        "hints": {"type": "array", "items": {"type": "string"}},
        "tags": {"type": "array", "items": {"type": "object"}},
        "evr_bindings": {"type": "array", "items": {"type": "string"}},
        "remove": {"type": "boolean"}
      }
    },
    "step": {
      "type": "object",
      "properties": {
        "plan_id": {"type": "string"},
        "id": {"type": "string", "description": "Omit to create a new step under plan_id"},
        "description": {"type": "string"},
        "hints": {"type": "array", "items": {"type": "string"}},
        "uses_evr": {"type": "array", "items": {"type": "string"}},
        "remove": {"type": "boolean"}
      },
      "required": ["plan_id"]
    },
    "evr": {
      "type": "object",
      "properties": {
        "id": {"type": "string", "description": "Omit to create a new EVR"},
        "plan_id": {"type": "string", "description": "Plan to bind a newly created EVR to"},
        "title": {"type": "string"},
        "verify": {"description": "A string or an array of strings"},
        "expect": {"description": "A string or an array of strings"},
        "class": {"type": "string", "enum": ["runtime", "static"]},
        "remove": {"type": "boolean"}
      }
    }
  }
}`)
}

func (t *CurrentTaskModify) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskModifyParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	_, proj, terr := toolkit.RequireActiveTask(t.session, t.registry)
	if terr != nil {
		return toolkit.Failure(terr)
	}

	cur, err := t.store.Load(ctx, proj.ActiveTaskDir, proj.ActiveTaskID)
	if err != nil {
		return nil, fmt.Errorf("current_task_modify: load: %w", err)
	}

	mutated, err := t.store.Mutate(ctx, proj.ActiveTaskDir, proj.ActiveTaskID, cur.Version, "ai", func(fresh *task.Task) error {
		if fresh.Completed() {
			return task.NewError(task.CodeInvalidStateTransition, "task is completed; no further mutations", nil)
		}
		now := time.Now().UTC()
		if p.Goal != nil {
			fresh.Goal = *p.Goal
		}
		if p.Hints != nil {
			fresh.Hints = p.Hints
		}
		if p.Requirements != nil {
			fresh.Requirements = p.Requirements
		}
		if p.Issues != nil {
			fresh.Issues = p.Issues
		}
		if p.Plan != nil {
			if err := applyPlanModify(fresh, p.Plan, now); err != nil {
				return err
			}
		}
		if p.Step != nil {
			if err := applyStepModify(fresh, p.Step, now); err != nil {
				return err
			}
		}
		if p.EVR != nil {
			if err := applyEVRModify(fresh, p.EVR); err != nil {
				return err
			}
		}
		if p.Plan != nil || p.EVR != nil {
			fresh.RebuildReferencedBy()
		}
		return nil
	})
	if err != nil {
		var terr *task.Error
		if errors.As(err, &terr) {
			return toolkit.Failure(terr)
		}
		if errors.Is(err, task.ErrVersionConflict) {
			return toolkit.Failure(task.NewError(task.CodeVersionConflict, "task changed concurrently; reload and retry", nil))
		}
		return nil, fmt.Errorf("current_task_modify: %w", err)
	}

	return toolkit.Success(map[string]any{"task": mutated})
}

func applyPlanModify(fresh *task.Task, p *planModifyParams, now time.Time) error {
	tags, tagBindings := splitEVRTags(p.Tags)
	bindings := append(p.EVRBindings, tagBindings...)
	if p.ID == "" {
		if p.Remove {
			return fmt.Errorf("current_task_modify: plan.id is required to remove a plan")
		}
		fresh.Plans = append(fresh.Plans, task.Plan{
			ID:          task.NewID(),
			Description: p.Description,
			Status:      task.StatusToDo,
			Hints:       p.Hints,
			Tags:        tags,
			EVRBindings: bindings,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return nil
	}
	if p.Remove {
		for i := range fresh.Plans {
			if fresh.Plans[i].ID == p.ID {
				fresh.Plans = append(fresh.Plans[:i], fresh.Plans[i+1:]...)
				if fresh.CurrentPlanID == p.ID {
					fresh.SetCurrentPlan("")
				}
				return nil
			}
		}
		return fmt.Errorf("current_task_modify: plan %q not found", p.ID)
	}
	plan := fresh.PlanByID(p.ID)
	if plan == nil {
		return fmt.Errorf("current_task_modify: plan %q not found", p.ID)
	}
	if p.Description != "" {
		plan.Description = p.Description
	}
	if p.Hints != nil {
		plan.Hints = p.Hints
	}
	if p.Tags != nil {
		plan.Tags = tags
		if len(tagBindings) > 0 && p.EVRBindings == nil {
			bindings = append(plan.EVRBindings, tagBindings...)
		}
	}
	if p.EVRBindings != nil || (p.Tags != nil && len(tagBindings) > 0) {
		plan.EVRBindings = bindings
	}
	plan.UpdatedAt = now
	return nil
}

// splitEVRTags peels plan-binding `evr` tags out of a tag list: they
// populate EVRBindings rather than surviving as plain context tags,
// matching what the panel parser does with `- [evr] id` lines.
func splitEVRTags(in []task.ContextTag) (tags []task.ContextTag, bindings []string) {
	for _, t := range in {
		if t.Kind == task.TagEVR {
			bindings = append(bindings, t.Value)
			continue
		}
		tags = append(tags, t)
	}
	return tags, bindings
}

func applyStepModify(fresh *task.Task, p *stepModifyParams, now time.Time) error {
	plan := fresh.PlanByID(p.PlanID)
	if plan == nil {
		return fmt.Errorf("current_task_modify: plan %q not found", p.PlanID)
	}
	if p.ID == "" {
		if p.Remove {
			return fmt.Errorf("current_task_modify: step.id is required to remove a step")
		}
		plan.Steps = append(plan.Steps, task.Step{
			ID:          task.NewID(),
			Description: p.Description,
			Status:      task.StatusToDo,
			Hints:       p.Hints,
			UsesEVR:     p.UsesEVR,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return nil
	}
	if p.Remove {
		for i := range plan.Steps {
			if plan.Steps[i].ID == p.ID {
				plan.Steps = append(plan.Steps[:i], plan.Steps[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("current_task_modify: step %q not found", p.ID)
	}
	for i := range plan.Steps {
		if plan.Steps[i].ID == p.ID {
			s := &plan.Steps[i]
			if p.Description != "" {
				s.Description = p.Description
			}
			if p.Hints != nil {
				s.Hints = p.Hints
			}
			if p.UsesEVR != nil {
				s.UsesEVR = p.UsesEVR
			}
			s.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("current_task_modify: step %q not found", p.ID)
}

func applyEVRModify(fresh *task.Task, p *evrModifyParams) error {
	if p.ID == "" {
		if p.Remove {
			return fmt.Errorf("current_task_modify: evr.id is required to remove an EVR")
		}
		verify, err := decodeTextOrList(p.Verify)
		if err != nil {
			return task.NewError(task.CodeEVRValidationFailed, err.Error(), nil)
		}
		expect, err := decodeTextOrList(p.Expect)
		if err != nil {
			return task.NewError(task.CodeEVRValidationFailed, err.Error(), nil)
		}
		class := p.Class
		if class == "" {
			class = task.ClassStatic
		}
		id := task.NewID()
		fresh.EVRs = append(fresh.EVRs, task.EVR{
			ID:     id,
			Title:  p.Title,
			Verify: verify,
			Expect: expect,
			Status: task.EVRUnknown,
			Class:  class,
		})
		if p.PlanID != "" {
			plan := fresh.PlanByID(p.PlanID)
			if plan == nil {
				return fmt.Errorf("current_task_modify: plan %q not found", p.PlanID)
			}
			plan.EVRBindings = append(plan.EVRBindings, id)
		}
		return nil
	}
	if p.Remove {
		for i := range fresh.EVRs {
			if fresh.EVRs[i].ID == p.ID {
				fresh.EVRs = append(fresh.EVRs[:i], fresh.EVRs[i+1:]...)
				for pi := range fresh.Plans {
					fresh.Plans[pi].EVRBindings = removeString(fresh.Plans[pi].EVRBindings, p.ID)
				}
				return nil
			}
		}
		return fmt.Errorf("current_task_modify: evr %q not found", p.ID)
	}
	e := fresh.EVRByID(p.ID)
	if e == nil {
		return fmt.Errorf("current_task_modify: evr %q not found", p.ID)
	}
	if p.Title != "" {
		e.Title = p.Title
	}
	if len(p.Verify) > 0 {
		v, err := decodeTextOrList(p.Verify)
		if err != nil {
			return task.NewError(task.CodeEVRValidationFailed, err.Error(), nil)
		}
		e.Verify = v
	}
	if len(p.Expect) > 0 {
		v, err := decodeTextOrList(p.Expect)
		if err != nil {
			return task.NewError(task.CodeEVRValidationFailed, err.Error(), nil)
		}
		e.Expect = v
	}
	if p.Class != "" {
		e.Class = p.Class
	}
	if p.PlanID != "" {
		plan := fresh.PlanByID(p.PlanID)
		if plan == nil {
			return fmt.Errorf("current_task_modify: plan %q not found", p.PlanID)
		}
		if !containsString(plan.EVRBindings, p.ID) {
			plan.EVRBindings = append(plan.EVRBindings, p.ID)
		}
	}
	return nil
}

// decodeTextOrList accepts either a JSON string or a JSON array of strings,
// preserving which shape was given rather than collapsing both to a list.
func decodeTextOrList(raw json.RawMessage) (task.TextOrList, error) {
	if len(raw) == 0 {
		return task.TextOrList{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return task.Scalar(s), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return task.List(list...), nil
	}
	return task.TextOrList{}, fmt.Errorf("verify/expect must be a string or an array of strings")
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
