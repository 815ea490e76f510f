package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

type currentTaskLogParams struct {
	Level    string `json:"level,omitempty"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Message  string `json:"message"`
	AINotes  string `json:"ai_notes,omitempty"`
}

// CurrentTaskLog implements current_task_log: an append-only
// journal entry attached to the active task, independent of plan/step/EVR
// state. Logs never gate anything; they're a running narration a human
// reviewing current.md's Logs section can read.
type CurrentTaskLog struct {
	registry *project.Registry
	store    *task.Store
	session  *session.State
}

// NewCurrentTaskLog constructs a CurrentTaskLog tool.
func NewCurrentTaskLog(registry *project.Registry, store *task.Store, sess *session.State) *CurrentTaskLog {
	return &CurrentTaskLog{registry: registry, store: store, session: sess}
}

func (t *CurrentTaskLog) Name() string { return "current_task_log" }

func (t *CurrentTaskLog) Description() string {
	return "Append one entry to the active task's log: level, category, action, message, and optional AI notes."
}

func (t *CurrentTaskLog) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "level": {"type": "string", "enum": ["debug", "info", "warn", "error"], "description": "Defaults to info"},
    "category": {"type": "string"},
    "action": {"type": "string"},
    "message": {"type": "string"},
    "ai_notes": {"type": "string"}
  },
  "required": ["category", "action", "message"]
}`)
}

func (t *CurrentTaskLog) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskLogParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Category == "" || p.Action == "" || p.Message == "" {
		return mcp.ErrorResult("category, action, and message are required"), nil
	}
	if p.Level == "" {
		p.Level = "info"
	}

	_, proj, terr := toolkit.RequireActiveTask(t.session, t.registry)
	if terr != nil {
		return toolkit.Failure(terr)
	}

	cur, err := t.store.Load(ctx, proj.ActiveTaskDir, proj.ActiveTaskID)
	if err != nil {
		return nil, fmt.Errorf("current_task_log: load: %w", err)
	}
	if cur.Completed() {
		return toolkit.Failure(task.NewError(task.CodeInvalidStateTransition, "task is completed; no further mutations", nil))
	}

	mutated, err := t.store.AppendLog(ctx, proj.ActiveTaskDir, proj.ActiveTaskID, task.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     p.Level,
		Category:  p.Category,
		Action:    p.Action,
		Message:   p.Message,
		AINotes:   p.AINotes,
	})
	if err != nil {
		return nil, fmt.Errorf("current_task_log: %w", err)
	}

	return toolkit.Success(map[string]any{"task": mutated})
}
