package project

import (
	"context"
	"encoding/json"

	"github.com/wavemcp/wavemcp/internal/evr"
	"github.com/wavemcp/wavemcp/internal/guidance"
	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

// recentTasksLimit bounds project_info's recent_tasks[] list.
const recentTasksLimit = 5

// ProjectInfo implements project_info: reports connection
// state, the active task if any, a short recent-tasks list, and a
// guidance-derived next_action hint. An unconnected session is a valid,
// reportable state, not a failure; only registry or task-tree read errors
// are returned as errors.
type ProjectInfo struct {
	registry     *project.Registry
	store        *task.Store
	session      *session.State
	requireRerun bool
}

// NewProjectInfo constructs a ProjectInfo tool.
func NewProjectInfo(registry *project.Registry, store *task.Store, sess *session.State, requireRerun bool) *ProjectInfo {
	return &ProjectInfo{registry: registry, store: store, session: sess, requireRerun: requireRerun}
}

func (t *ProjectInfo) Name() string { return "project_info" }

func (t *ProjectInfo) Description() string {
	return "Report whether a project is connected, its active task (if any), recent tasks, and a next_action hint."
}

func (t *ProjectInfo) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ProjectInfo) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	root := t.session.Root()
	if root == "" {
		outcome := guidance.ForProjectInfo(guidance.SessionState{})
		return toolkit.Success(map[string]any{
			"connected":   false,
			"next_action": outcome.NextAction(),
		})
	}

	proj, ok, err := t.registry.Get(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Session holds a root the registry has since forgotten; treat as
		// unconnected rather than erroring.
		outcome := guidance.ForProjectInfo(guidance.SessionState{})
		return toolkit.Success(map[string]any{
			"connected":   false,
			"next_action": outcome.NextAction(),
		})
	}

	recent, err := task.RecentTasks(root, recentTasksLimit)
	if err != nil {
		return nil, err
	}

	state := guidance.SessionState{ProjectBound: true, HasActiveTask: proj.ActiveTaskID != ""}
	var activeTask *task.Task
	if proj.ActiveTaskID != "" {
		activeTask, err = t.store.Load(ctx, proj.ActiveTaskDir, proj.ActiveTaskID)
		if err == nil {
			pending, perr := task.PanelPending(proj.ActiveTaskDir, activeTask.UpdatedAt)
			state.PanelPending = (perr == nil && pending) || t.session.PanelDirty(proj.ActiveTaskDir)
			gateOK, pendingEVRs, _ := evr.TaskGate(activeTask, t.requireRerun)
			state.TaskGateOK = gateOK
			state.PendingEVRs = len(pendingEVRs)
			state.PlanInFlight = activeTask.CurrentPlanID != ""
		}
	}
	outcome := guidance.ForProjectInfo(state)

	fields := map[string]any{
		"connected":    true,
		"project":      proj,
		"recent_tasks": recent,
		"next_action":  outcome.NextAction(),
	}
	if activeTask != nil {
		fields["active_task"] = activeTask
	}
	return toolkit.Success(fields)
}
