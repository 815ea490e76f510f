package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavemcp/wavemcp/internal/lock"
	"github.com/wavemcp/wavemcp/internal/project"
)

var doctorRoot string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Scan connected projects' .wave/tasks trees for stale lock sentinels",
	Long:  "doctor walks every connected project's .wave/tasks directory and reports any lock sentinel that has outlived its own timeout, which would otherwise only be cleared by the next contending current_task_update/read call.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorRoot, "root", "", "check only this project root instead of every connected project")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var roots []string
	if doctorRoot != "" {
		roots = []string{doctorRoot}
	} else {
		projects, err := project.NewRegistry()
		if err != nil {
			return fmt.Errorf("opening project registry: %w", err)
		}
		list, err := projects.List()
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		for _, p := range list {
			roots = append(roots, p.Root)
		}
	}

	if len(roots) == 0 {
		fmt.Fprintln(os.Stdout, "no connected projects to check")
		return nil
	}

	found := 0
	now := time.Now()
	for _, root := range roots {
		n, err := scanRoot(root, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wavemcp doctor: %s: %v\n", root, err)
			continue
		}
		found += n
	}

	if found == 0 {
		fmt.Fprintln(os.Stdout, "no stale locks found")
	}
	return nil
}

func scanRoot(root string, now time.Time) (int, error) {
	tasksDir := filepath.Join(root, ".wave", "tasks")
	found := 0
	err := filepath.WalkDir(tasksDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Base(path) != ".lock.json" {
			return nil
		}
		s, rerr := lock.ReadSentinelFile(path)
		if rerr != nil {
			return nil
		}
		if lock.IsStale(s, now) {
			fmt.Fprintf(os.Stdout, "%s: stale %s lock held by %s since %s (timeout %dms)\n",
				filepath.Dir(path), s.Type, s.ProcessID, s.Timestamp.Format(time.RFC3339), s.TimeoutMS)
			found++
		}
		return nil
	})
	if err != nil {
		return found, err
	}
	return found, nil
}
