package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Summary is the minimal projection of a task used by project_info's
// `recent_tasks[]` and by registry listings — enough to pick a task
// without loading its full aggregate.
type Summary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Dir         string     `json:"dir"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListTasks walks a project's `.wave/tasks/YYYY/MM/DD/<slug>--<id8>/` tree
// and returns a Summary per task directory found. Completed tasks are not
// moved to a separate location (archiving stays a store-internal
// concern); a dated directory already carries enough history for
// `recent_tasks[]` to sort on, so "archiving" here means surfacing a
// lightweight, completed-inclusive listing rather than relocating files.
func ListTasks(projectRoot string) ([]Summary, error) {
	root := filepath.Join(projectRoot, ".wave", "tasks")
	var out []Summary
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Base(path) != taskFile {
			return nil
		}
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		var t Task
		if jerr := json.Unmarshal(b, &t); jerr != nil {
			return nil
		}
		out = append(out, Summary{
			ID: t.ID, Title: t.Title, Slug: t.Slug, Dir: filepath.Dir(path),
			CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt, CompletedAt: t.CompletedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("task: list tasks: %w", err)
	}
	return out, nil
}

// RecentTasks returns up to limit Summaries sorted by most-recently
// updated first.
func RecentTasks(projectRoot string, limit int) ([]Summary, error) {
	all, err := ListTasks(projectRoot)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// PanelPending reports whether a task's rendered panel file has been
// modified on disk more recently than the aggregate's UpdatedAt — the
// signal current_task_read surfaces as `panel_pending` to tell a caller a
// human edited current.md and a sync pass (package sync) is due.
func PanelPending(dir string, aggregateUpdatedAt time.Time) (bool, error) {
	info, err := os.Stat(PanelPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("task: stat panel: %w", err)
	}
	return info.ModTime().After(aggregateUpdatedAt), nil
}

// Watcher watches the task directories added through Watch for panel file
// writes and invokes onChange with the owning task directory, so a
// long-lived server process can proactively notice a human edit instead of
// waiting for the next current_task_read poll. Events are not debounced:
// every write or create of current.md triggers one onChange call.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(taskDir string)
	stopCh   chan struct{}
}

// NewWatcher constructs a Watcher with an empty watch set; directories
// are added with Watch.
func NewWatcher(logger *slog.Logger, onChange func(taskDir string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("task: new watcher: %w", err)
	}
	return &Watcher{fsw: fsw, logger: logger, onChange: onChange, stopCh: make(chan struct{})}, nil
}

// Watch adds a task directory to the watch set; call once per active task
// directory (new directories created later need their own call).
func (w *Watcher) Watch(taskDir string) error {
	if err := w.fsw.Add(taskDir); err != nil {
		return fmt.Errorf("task: watch %s: %w", taskDir, err)
	}
	return nil
}

// Run blocks, dispatching onChange whenever a watched directory's
// current.md is written, until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != "current.md" {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.onChange(filepath.Dir(ev.Name))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("task watcher error", "error", err)
		}
	}
}

// Stop ends Run and releases the underlying OS watch.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.fsw.Close()
}
