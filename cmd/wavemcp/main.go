// Command wavemcp runs the wavemcp MCP server: a Model Context Protocol
// server that manages one active task per project as a structured record
// (task.json) kept in lockstep with a human-editable Markdown panel
// (current.md).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags at build time.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "wavemcp",
	Short:   "wavemcp — task-panel MCP server",
	Long:    "wavemcp runs an MCP server that keeps a structured task record in sync with a human-editable Markdown panel.",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to wavemcp.toml (default: search WAVEMCP_CONFIG, ./wavemcp.toml, ~/.config/wavemcp/wavemcp.toml)")
	rootCmd.SetVersionTemplate("wavemcp {{.Version}}\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wavemcp: %v\n", err)
		os.Exit(1)
	}
}
