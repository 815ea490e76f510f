// Package toolkit holds the response envelope and session/project/task
// resolution helpers shared by every tool in internal/tools/project and
// internal/tools/task, so each tool file only has to express its own
// business logic: every body is either "{success: true, ...}" or
// "{success: false, error_code, message, recovery?}".
package toolkit

import (
	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/task"
)

// Success wraps a result body into the success envelope. fields may be
// nil for a tool with no payload beyond success itself.
func Success(fields map[string]any) (*mcp.ToolsCallResult, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["success"] = true
	return mcp.JSONResult(fields)
}

// Failure wraps a *task.Error into the failure envelope. Any other error
// (an unexpected I/O failure, say) is returned as-is so the MCP server's
// transport-level error handling takes over instead of this tool
// fabricating an error_code for something it doesn't understand.
func Failure(err *task.Error) (*mcp.ToolsCallResult, error) {
	body := map[string]any{
		"success":    false,
		"error_code": string(err.Code),
		"message":    err.Message,
	}
	if err.Recovery != nil {
		body["recovery"] = err.Recovery
	}
	return mcp.JSONResult(body)
}

// RequireProject resolves the session's bound root, or the
// NO_PROJECT_BOUND error if none is bound.
func RequireProject(sess *session.State) (string, *task.Error) {
	root := sess.Root()
	if root == "" {
		return "", task.NewError(task.CodeNoProjectBound, "no project connected; call connect_project first",
			&task.Recovery{NextAction: "connect_project"})
	}
	return root, nil
}

// RequireActiveTask resolves the session's bound project and its active
// task directory/id, or the NO_PROJECT_BOUND/NO_ACTIVE_TASK errors (the
// handshake contract) that every current_task_* tool except init shares.
func RequireActiveTask(sess *session.State, reg *project.Registry) (root string, proj project.Project, terr *task.Error) {
	root, terr = RequireProject(sess)
	if terr != nil {
		return "", project.Project{}, terr
	}
	p, ok, err := reg.Get(root)
	if err != nil {
		return "", project.Project{}, task.NewError(task.CodeNoProjectBound, err.Error(), nil)
	}
	if !ok || p.ActiveTaskID == "" {
		return "", project.Project{}, task.NewError(task.CodeNoActiveTask, "no active task for this project",
			&task.Recovery{NextAction: "current_task_init"})
	}
	return root, p, nil
}
