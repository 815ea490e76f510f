package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wavemcp/wavemcp/internal/lock"
)

// taskFile and panelFile are the on-disk artifacts inside a task directory
//: the authoritative aggregate, the rendered panel, and the
// append-only log.
const (
	taskFile  = "task.json"
	panelFile = "current.md"
	logFile   = "logs.jsonl"
)

// RenderFunc re-renders a task to its panel Markdown form; the store takes
// this as a parameter rather than importing package panel directly, since
// panel already imports task and a direct import back would cycle.
type RenderFunc func(*Task) string

// Store is the task state store: it owns the on-disk layout under a
// project's `.wave/tasks/` tree and serializes every mutation through a
// lock.Manager via the atomic mutation contract.
type Store struct {
	locks  *lock.Manager
	render RenderFunc
	logger *slog.Logger
}

// NewStore constructs a Store. render is typically panel.Render; passing it
// in keeps this package free of a dependency on package panel.
func NewStore(locks *lock.Manager, render RenderFunc, logger *slog.Logger) *Store {
	return &Store{locks: locks, render: render, logger: logger}
}

// Dir computes the dated, slug-and-id-keyed task directory under a
// project's `.wave/` root: tasks/YYYY/MM/DD/<slug>--<id8>.
func Dir(projectRoot string, createdAt time.Time, slug, id string) string {
	id8 := id
	if len(id8) > 8 {
		id8 = id8[:8]
	}
	name := fmt.Sprintf("%s--%s", slug, strings.ToLower(id8))
	return filepath.Join(projectRoot, ".wave", "tasks",
		createdAt.Format("2006"), createdAt.Format("01"), createdAt.Format("02"), name)
}

// ErrVersionConflict is returned by Mutate when expectedVersion doesn't
// match the task's current version on disk.
var ErrVersionConflict = fmt.Errorf("task: version_conflict")

// Create writes a freshly initialized task to disk for the first time: its
// directory, task.json, an empty logs.jsonl, and a rendered current.md.
func (s *Store) Create(ctx context.Context, projectRoot string, t *Task) error {
	dir := Dir(projectRoot, t.CreatedAt, t.Slug, t.ID)
	h, err := s.locks.Acquire(ctx, dir, t.ID, lock.KindWrite, nil)
	if err != nil {
		return fmt.Errorf("task: acquire lock: %w", err)
	}
	defer h.Release()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("task: create task dir: %w", err)
	}
	t.Version = 1
	if err := s.writeAggregate(dir, t); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, logFile), nil, 0o644); err != nil {
		return fmt.Errorf("task: init log file: %w", err)
	}
	s.logger.Info("task created", "task_id", t.ID, "dir", dir)
	return nil
}

// Load reads the authoritative aggregate from a task directory under a
// read lock. The lock manager admits one holder per task directory at a
// time, so a Load also waits for any other Load on the same task.
func (s *Store) Load(ctx context.Context, dir, taskID string) (*Task, error) {
	h, err := s.locks.Acquire(ctx, dir, taskID, lock.KindRead, nil)
	if err != nil {
		return nil, fmt.Errorf("task: acquire read lock: %w", err)
	}
	defer h.Release()
	return s.readAggregate(dir)
}

// Mutate implements the atomic mutation contract: load, validate
// expectedVersion, run fn against the in-memory task, write the new
// aggregate and re-rendered panel, release. fn mutating t in place is
// sufficient; Mutate handles Version/UpdatedAt bookkeeping itself.
func (s *Store) Mutate(ctx context.Context, dir, taskID string, expectedVersion int, modifiedBy string, fn func(*Task) error) (*Task, error) {
	h, err := s.locks.Acquire(ctx, dir, taskID, lock.KindWrite, nil)
	if err != nil {
		return nil, fmt.Errorf("task: acquire write lock: %w", err)
	}
	defer h.Release()

	t, err := s.readAggregate(dir)
	if err != nil {
		return nil, err
	}
	if t.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	t.ModifiedBy = modifiedBy
	if err := s.writeAggregate(dir, t); err != nil {
		return nil, err
	}
	s.logger.Info("task mutated", "task_id", t.ID, "version", t.Version)
	return t, nil
}

// AppendLog appends one entry to both logs.jsonl (the durable,
// never-rewritten append log) and the aggregate's recent Logs slice,
// under the same write-lock discipline as Mutate. The jsonl line is
// written first, so a crash between the two writes still leaves the
// append-only record intact.
func (s *Store) AppendLog(ctx context.Context, dir, taskID string, entry LogEntry) (*Task, error) {
	h, err := s.locks.Acquire(ctx, dir, taskID, lock.KindWrite, nil)
	if err != nil {
		return nil, fmt.Errorf("task: acquire write lock: %w", err)
	}
	defer h.Release()

	if err := appendLogLine(dir, entry); err != nil {
		return nil, err
	}
	t, err := s.readAggregate(dir)
	if err != nil {
		return nil, err
	}
	t.Logs = append(t.Logs, entry)
	t.Version++
	t.UpdatedAt = entry.Timestamp
	if err := s.writeAggregate(dir, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadLogs reads logs.jsonl in full and returns the last `limit` entries
// plus the total count, for current_task_read's `logs_highlights` /
// `logs_full_count` fields. limit <= 0 returns every entry.
func ReadLogs(dir string, limit int) (highlights []LogEntry, total int, err error) {
	b, err := os.ReadFile(filepath.Join(dir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("task: read logs: %w", err)
	}
	var all []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, 0, fmt.Errorf("task: decode log line: %w", err)
		}
		all = append(all, e)
	}
	total = len(all)
	if limit <= 0 || limit >= total {
		return all, total, nil
	}
	return all[total-limit:], total, nil
}

func appendLogLine(dir string, entry LogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("task: marshal log entry: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("task: open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("task: append log line: %w", err)
	}
	return nil
}

// readAggregate loads task.json without acquiring a lock; callers must
// already hold one.
func (s *Store) readAggregate(dir string) (*Task, error) {
	b, err := os.ReadFile(filepath.Join(dir, taskFile))
	if err != nil {
		return nil, fmt.Errorf("task: read aggregate: %w", err)
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("task: decode aggregate: %w", err)
	}
	return &t, nil
}

// writeAggregate persists task.json and the re-rendered current.md
// together; callers must already hold a write lock.
func (s *Store) writeAggregate(dir string, t *Task) error {
	// Render before marshaling: Render mints and assigns anchor ids for
	// any plan/step/EVR that doesn't have one yet, mutating t in place. If
	// the aggregate were marshaled first, a freshly minted id would reach
	// current.md but never reach task.json, and the next mutation would
	// mint a different id for the same entity on every call.
	var md string
	if s.render != nil {
		md = s.render(t)
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("task: marshal aggregate: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, taskFile), b, 0o644); err != nil {
		return fmt.Errorf("task: write aggregate: %w", err)
	}
	if s.render != nil {
		if err := os.WriteFile(filepath.Join(dir, panelFile), []byte(md), 0o644); err != nil {
			return fmt.Errorf("task: write panel: %w", err)
		}
	}
	return nil
}

// PanelPath returns the path to a task directory's rendered panel, for
// callers that need to stat it directly (e.g. PanelPending in
// archive.go).
func PanelPath(dir string) string { return filepath.Join(dir, panelFile) }
