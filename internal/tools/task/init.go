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

type currentTaskInitParams struct {
	Title string   `json:"title"`
	Goal  string   `json:"goal"`
	Plans []string `json:"plans,omitempty"`
}

// CurrentTaskInit implements current_task_init: creates a
// task under the bound project and makes it the active task.
type CurrentTaskInit struct {
	registry *project.Registry
	store    *task.Store
	session  *session.State
}

// NewCurrentTaskInit constructs a CurrentTaskInit tool.
func NewCurrentTaskInit(registry *project.Registry, store *task.Store, sess *session.State) *CurrentTaskInit {
	return &CurrentTaskInit{registry: registry, store: store, session: sess}
}

func (t *CurrentTaskInit) Name() string { return "current_task_init" }

func (t *CurrentTaskInit) Description() string {
	return "Create a new task with a title, a one-line goal, and an optional initial plan list, and make it the active task."
}

func (t *CurrentTaskInit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "Short task title"},
    "goal": {"type": "string", "description": "One-line statement of what done looks like"},
    "plans": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Optional initial plan descriptions, one checkbox item each"
    }
  },
  "required": ["title", "goal"]
}`)
}

func (t *CurrentTaskInit) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskInitParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Title == "" || p.Goal == "" {
		return mcp.ErrorResult("title and goal are required"), nil
	}

	root, terr := toolkit.RequireProject(t.session)
	if terr != nil {
		return toolkit.Failure(terr)
	}

	now := time.Now().UTC()
	tk := &task.Task{
		ID:        task.NewID(),
		Title:     p.Title,
		Slug:      project.SlugFromTitle(p.Title),
		Goal:      p.Goal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, desc := range p.Plans {
		tk.Plans = append(tk.Plans, task.Plan{
			ID:          task.NewID(),
			Description: desc,
			Status:      task.StatusToDo,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	dir := task.Dir(root, tk.CreatedAt, tk.Slug, tk.ID)
	if err := t.store.Create(ctx, root, tk); err != nil {
		return nil, fmt.Errorf("current_task_init: %w", err)
	}
	if err := t.registry.SetActiveTask(root, tk.ID, dir); err != nil {
		return nil, fmt.Errorf("current_task_init: set active task: %w", err)
	}

	return toolkit.Success(map[string]any{"task": tk})
}
