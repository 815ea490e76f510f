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

type currentTaskCompleteParams struct {
	Summary string `json:"summary,omitempty"`
}

// CurrentTaskComplete implements current_task_complete: the
// task gate must find every EVR ready before the task may close. On
// success the project's active-task binding is cleared, so the next
// current_task_read/update call needs a fresh current_task_init.
type CurrentTaskComplete struct {
	registry     *project.Registry
	store        *task.Store
	session      *session.State
	requireRerun bool
}

// NewCurrentTaskComplete constructs a CurrentTaskComplete tool.
func NewCurrentTaskComplete(registry *project.Registry, store *task.Store, sess *session.State, requireRerun bool) *CurrentTaskComplete {
	return &CurrentTaskComplete{registry: registry, store: store, session: sess, requireRerun: requireRerun}
}

func (t *CurrentTaskComplete) Name() string { return "current_task_complete" }

func (t *CurrentTaskComplete) Description() string {
	return "Close the active task once every Expected Visible Result is ready (pass or skip-with-reason); blocked otherwise."
}

func (t *CurrentTaskComplete) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "Optional closing summary recorded to the task log"}
  }
}`)
}

func (t *CurrentTaskComplete) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskCompleteParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	root, proj, terr := toolkit.RequireActiveTask(t.session, t.registry)
	if terr != nil {
		return toolkit.Failure(terr)
	}
	dir := proj.ActiveTaskDir

	cur, err := t.store.Load(ctx, dir, proj.ActiveTaskID)
	if err != nil {
		return nil, fmt.Errorf("current_task_complete: load: %w", err)
	}
	if cur.Completed() {
		return toolkit.Failure(task.NewError(task.CodeInvalidStateTransition, "task is already completed", nil))
	}

	ok, pending, summary := evr.TaskGate(cur, t.requireRerun)
	if !ok {
		required := make([]map[string]string, len(pending))
		for i, pe := range pending {
			required[i] = map[string]string{"evr_id": pe.EVRID, "reason": string(pe.Reason)}
		}
		return toolkit.Failure(task.NewError(task.CodeEVRNotReady, evr.FormatPendingMessage(pending), &task.Recovery{
			NextAction: "current_task_update",
			Data: map[string]any{
				"evr_required_final": required,
				"evr_summary":        summary,
			},
		}))
	}

	mutated, err := t.store.Mutate(ctx, dir, proj.ActiveTaskID, cur.Version, "ai", func(fresh *task.Task) error {
		if fresh.Completed() {
			return task.NewError(task.CodeInvalidStateTransition, "task is already completed", nil)
		}
		now := time.Now().UTC()
		fresh.CompletedAt = &now
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
		return nil, fmt.Errorf("current_task_complete: %w", err)
	}

	if _, err := t.store.AppendLog(ctx, dir, proj.ActiveTaskID, task.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Category:  "lifecycle",
		Action:    "complete",
		Message:   "task completed",
		AINotes:   p.Summary,
	}); err != nil {
		return nil, fmt.Errorf("current_task_complete: append log: %w", err)
	}

	if err := t.registry.ClearActiveTask(root); err != nil {
		return nil, fmt.Errorf("current_task_complete: clear active task: %w", err)
	}

	return toolkit.Success(map[string]any{"task": mutated, "evr_summary": summary})
}
