package content

import "github.com/wavemcp/wavemcp/internal/mcp"

// --- wavemcp://panel-format resource ---

// PanelFormatResource documents the canonical panel Markdown shape, for an
// LLM or human to understand current.md well enough to hand-edit it safely.
type PanelFormatResource struct{}

func (r *PanelFormatResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "wavemcp://panel-format",
		Name:        "wavemcp Panel Format",
		Description: "Reference for the current.md panel Markdown shape: sections, checkbox glyphs, anchors, and EVR fields",
		MimeType:    "text/markdown",
	}
}

func (r *PanelFormatResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: "wavemcp://panel-format", MimeType: "text/markdown", Text: panelFormatContent},
		},
	}, nil
}

// --- wavemcp://tool-reference resource ---

// ToolReferenceResource exposes a quick-reference card for the 8 core tools.
type ToolReferenceResource struct{}

func (r *ToolReferenceResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "wavemcp://tool-reference",
		Name:        "wavemcp Tool Reference",
		Description: "Quick-reference card for the core task-management tools",
		MimeType:    "text/markdown",
	}
}

func (r *ToolReferenceResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: "wavemcp://tool-reference", MimeType: "text/markdown", Text: toolReferenceContent},
		},
	}, nil
}

const panelFormatContent = `# wavemcp Panel Format

## Structure

Optional YAML front matter (` + "`md_version`" + `, ` + "`last_modified`" + `), then:

    # Task: <title>

    ## Requirements
    - bullet items

    ## Issues
    - bullet items

    ## Plans & Steps

    1. [ ] plan description <!-- plan:ID -->
      - [evr] bound EVR id
      > plan hint
      1.1. [ ] step description <!-- step:ID -->

    ## Expected Visible Results

    1. [ ] EVR title <!-- evr:ID -->
      - [verify] command or assertion
      - [expect] expected output
      - [status] pass|fail|skip|unknown
      - [class] runtime|static
      - [last_run] ISO-8601 timestamp
      - [notes] free text (required when status is skip)
      - [proof] path or URL

## Checkbox glyphs

| Glyph | Plan/Step status | EVR status |
|---|---|---|
| ` + "`[ ]`" + ` | to_do | unknown |
| ` + "`[-]`" + ` | in_progress | skip |
| ` + "`[x]`" + ` | completed | pass |
| ` + "`[!]`" + ` | blocked | fail |

Many near-miss spellings of each glyph are tolerated on read, but the
renderer always emits exactly these four.

## Anchors

Every plan, step, and EVR carries an HTML-comment anchor
(` + "`<!-- plan:ID -->`" + `, ` + "`<!-- step:ID -->`" + `, ` + "`<!-- evr:ID -->`" + `) once it has been
rendered once. Reordering lines is safe as long as anchors stay attached to
their line; the server resolves an anchor to its entity even if its line
number has drifted a little.

## Ownership

The server owns status (the glyph). A human editing content — description
text, hints, EVR verify/expect fields — is always safe; the next sync picks
it up. A human flipping a checkbox glyph directly is not synced back as a
status change — use ` + "`current_task_update`" + ` for that.
`

const toolReferenceContent = `# wavemcp Tool Quick Reference

### project_info
Returns ` + "`{connected, project?, active_task?, recent_tasks[], next_action}`" + `.
No arguments, no project required.

### connect_project
Binds the session to a project. Exactly one of ` + "`root`" + `/` + "`slug`" + `/` + "`repo`" + `.

### current_task_init
Creates a task. Required: ` + "`title`" + `, ` + "`goal`" + `. Optional: ` + "`plans`" + ` ([]string).
Requires a connected project.

### current_task_read
Returns the task plus ` + "`evr_ready`" + `, ` + "`evr_summary`" + `, ` + "`evr_details`" + `,
` + "`panel_pending`" + `, ` + "`sync_preview`" + ` (when the panel has diverged), ` + "`logs_highlights`" + `,
` + "`logs_full_count`" + `, ` + "`md_version`" + `.

### current_task_update
Changes a plan or step's status, or records an EVR verification run.
Completing a plan bound to an EVR is blocked until that EVR is ready.

### current_task_modify
Edits content: goal, hints, plan/step text, or adds/removes EVRs.

### current_task_complete
Transitions the task to completed. Blocked until every EVR is ready.

### current_task_log
Appends one log entry (level, category, action, message).
`
