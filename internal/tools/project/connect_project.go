package project

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

type connectProjectParams struct {
	Root string `json:"root,omitempty"`
	Slug string `json:"slug,omitempty"`
	Repo string `json:"repo,omitempty"`
}

// ConnectProject implements connect_project: binds the
// session to a project root, resolved from exactly one of root/slug/repo.
type ConnectProject struct {
	registry *project.Registry
	session  *session.State
}

// NewConnectProject constructs a ConnectProject tool.
func NewConnectProject(registry *project.Registry, sess *session.State) *ConnectProject {
	return &ConnectProject{registry: registry, session: sess}
}

func (t *ConnectProject) Name() string { return "connect_project" }

func (t *ConnectProject) Description() string {
	return "Bind this session to a project by exactly one of root (absolute path), slug, or repo."
}

func (t *ConnectProject) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "root": {
      "type": "string",
      "description": "Absolute path to the project's repository root. Required the first time a project is connected."
    },
    "slug": {
      "type": "string",
      "description": "A previously-connected project's short name."
    },
    "repo": {
      "type": "string",
      "description": "A previously-connected project's repo identifier."
    }
  }
}`)
}

func (t *ConnectProject) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p connectProjectParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	root, err := project.Resolve(p.Root, p.Slug, p.Repo, t.registry)
	if err != nil {
		return toolkit.Failure(translateResolveErr(err))
	}

	proj, err := t.registry.Connect(root, p.Slug, p.Repo)
	if err != nil {
		return nil, fmt.Errorf("connect_project: %w", err)
	}
	t.session.Connect(root)

	return toolkit.Success(map[string]any{
		"project": proj,
	})
}

// translateResolveErr maps project.Resolve's sentinel errors onto the
// closed error-kind vocabulary.
func translateResolveErr(err error) *task.Error {
	var ambiguous *project.ErrAmbiguous
	switch {
	case asAmbiguous(err, &ambiguous):
		return task.NewError(task.CodeMultipleCandidates, err.Error(), &task.Recovery{Candidates: ambiguous.Candidates})
	case err == project.ErrNotFound:
		return task.NewError(task.CodeNotFound, err.Error(), nil)
	default:
		return task.NewError(task.CodeInvalidRoot, err.Error(), nil)
	}
}

func asAmbiguous(err error, out **project.ErrAmbiguous) bool {
	if a, ok := err.(*project.ErrAmbiguous); ok {
		*out = a
		return true
	}
	return false
}
