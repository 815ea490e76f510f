package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var infoClient string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print server configuration and client setup snippets",
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoClient, "client", "", "print configuration for one client: claude, cursor, opencode")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	switch strings.ToLower(infoClient) {
	case "claude":
		printClientConfig("Claude Desktop", "claude_desktop_config.json")
	case "cursor":
		printClientConfig("Cursor", ".cursor/mcp.json")
	case "opencode":
		printClientConfig("OpenCode", ".opencode.json or opencode.json")
	case "":
		printGeneralInfo()
	default:
		return fmt.Errorf("unknown client %q (want claude, cursor, or opencode)", infoClient)
	}
	return nil
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `wavemcp %s — task-panel MCP server

wavemcp keeps one active task per project as a structured record
(task.json) synchronized with a human-editable Markdown panel
(current.md). A human can hand-edit the panel directly; the next
current_task_read folds those edits back into the structured task.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when launched
    as a subprocess by an MCP client.

  http
    Runs as a standalone HTTP server (MCP Streamable HTTP transport,
    spec 2025-03-26).

    Endpoint:      POST /mcp
    Health check:  GET /health
    Default port:  21452

TOOLS (8)

  project_info          Report the connected project and its active task, if any
  connect_project        Bind this session to a project by root path, slug, or repo
  current_task_init      Start a new active task with a title, goal, and initial plans
  current_task_read      Read the active task, folding in any pending panel edit
  current_task_update    Transition plan/step status or record an EVR verification run
  current_task_modify    Edit task content: goal, hints, plan/step text, EVR definitions
  current_task_complete  Close the active task once every EVR is ready
  current_task_log       Append one entry to the active task's log

PROMPTS (1)

  start-task   Guide for connecting to a project and starting a task

RESOURCES (2)

  wavemcp://panel-format    Reference for the current.md panel Markdown shape
  wavemcp://tool-reference  Quick-reference card for the 8 core tools

CONFIGURATION

  wavemcp reads wavemcp.toml (searched at ./wavemcp.toml, then
  ~/.config/wavemcp/wavemcp.toml, or an explicit --config path), then
  applies WAVEMCP_* environment variable overrides. Run 'wavemcp doctor'
  to check a project's .wave/ directory for stale locks.

CLIENT CONFIGURATION

  wavemcp info --client=claude
  wavemcp info --client=cursor
  wavemcp info --client=opencode
`, version)
}

func printClientConfig(client, file string) {
	snippet := `{
  "mcpServers": {
    "wavemcp": {
      "command": "wavemcp",
      "args": ["serve"]
    }
  }
}`
	httpSnippet := `{
  "mcpServers": {
    "wavemcp": {
      "type": "streamable-http",
      "url": "http://localhost:21452/mcp"
    }
  }
}`

	fmt.Fprintf(os.Stdout, `%s — stdio mode
%s

Add to %s:

%s

wavemcp runs as a subprocess — no server needed.

%s — http mode (remote server)
%s

Add to %s:

%s

Start the server separately with 'wavemcp serve' (WAVEMCP_TRANSPORT=http).
`, client, strings.Repeat("─", len(client)+14), file, snippet,
		client, strings.Repeat("─", len(client)+24), file, httpSnippet)
}
