// Package content provides MCP prompts and resources for the wavemcp server.
package content

import "github.com/wavemcp/wavemcp/internal/mcp"

// --- start-task prompt ---

// StartTaskPrompt guides an LLM through binding to a project and starting a
// task using the core task-management tools.
type StartTaskPrompt struct{}

func (p *StartTaskPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "start-task",
		Description: "Interactive guide for connecting to a project and starting a new task.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *StartTaskPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for connecting to a project and starting a task",
		Messages: []mcp.PromptMessage{
			{Role: "user", Content: mcp.TextContent(startTaskGuide)},
		},
	}, nil
}

const startTaskGuide = `# Start a Task - Guide

You are helping a user plan and track a piece of work with wavemcp.

## Step 1: Connect to the project

Call ` + "`connect_project`" + ` with exactly one of:
- root — absolute path to the repository
- slug — a previously-connected project's short name
- repo — a previously-connected project's repo identifier

If the project has never been connected before, you must pass root.

## Step 2: Check state

Call ` + "`project_info`" + `. If ` + "`active_task`" + ` is already set, resume it with
` + "`current_task_read`" + ` instead of starting a new one.

## Step 3: Start the task

Call ` + "`current_task_init`" + ` with a title, a one-line goal, and optionally an
initial list of plan descriptions. Each plan becomes a checkbox item in the
rendered panel (` + "`current.md`" + `) that a human can edit directly.

## Step 4: Work the plan

- ` + "`current_task_update`" + ` flips a plan/step's status, or records an Expected
  Visible Result (EVR) verification run.
- ` + "`current_task_modify`" + ` edits content: goal, hints, plan/step text, or
  adds/removes EVRs.
- ` + "`current_task_log`" + ` appends a log entry — use it for anything worth
  remembering later (a command that failed, a decision made).

## Step 5: Respect the gates

A plan bound to an EVR cannot complete until that EVR is ready (passed, or
skipped with a reason). The task itself cannot complete until every EVR is
ready. Read ` + "`current_task_read`" + `'s ` + "`evr_ready`" + ` and ` + "`evr_summary`" + ` fields before
calling ` + "`current_task_complete`" + `.

## Step 6: Mind the panel

A human may edit ` + "`current.md`" + ` directly in their editor. ` + "`current_task_read`" + `
reports ` + "`panel_pending`" + ` when the file has unsynced edits, and
` + "`sync_preview`" + ` once it's been diffed against the stored aggregate. Content
edits flow panel → task; status always flows task → panel, never back.
`
