package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wavemcp/wavemcp/internal/evr"
	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/sync"
	"github.com/wavemcp/wavemcp/internal/task"
	"github.com/wavemcp/wavemcp/internal/tools/toolkit"
)

const defaultLogsLimit = 20

type currentTaskReadParams struct {
	LogsLimit int    `json:"logs_limit,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CurrentTaskRead implements current_task_read: the one tool
// that notices a human has hand-edited current.md and folds that edit back
// into the structured task before reporting state. It never reports a
// status that originated in the panel — the diff detector separates
// status divergences out as StatusChanges, which are surfaced but never
// applied, so the panel can never reassign status through a read.
type CurrentTaskRead struct {
	registry     *project.Registry
	store        *task.Store
	session      *session.State
	strategy     sync.Strategy
	skew         time.Duration
	requireRerun bool
	cache        *sync.Cache
}

// NewCurrentTaskRead constructs a CurrentTaskRead tool. cache memoizes
// sync results per caller-supplied request_id; pass nil to
// disable memoization.
func NewCurrentTaskRead(registry *project.Registry, store *task.Store, sess *session.State, strategy sync.Strategy, skew time.Duration, requireRerun bool, cache *sync.Cache) *CurrentTaskRead {
	return &CurrentTaskRead{registry: registry, store: store, session: sess, strategy: strategy, skew: skew, requireRerun: requireRerun, cache: cache}
}

func (t *CurrentTaskRead) Name() string { return "current_task_read" }

func (t *CurrentTaskRead) Description() string {
	return "Read the active task, folding in any pending hand-edit of its panel file, and report EVR readiness and recent logs."
}

func (t *CurrentTaskRead) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "logs_limit": {"type": "integer", "description": "Number of recent log entries to return (default 20)"},
    "request_id": {"type": "string", "description": "Caller-unique id; repeated reads with the same id reuse the memoized sync result"}
  }
}`)
}

func (t *CurrentTaskRead) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p currentTaskReadParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	limit := p.LogsLimit
	if limit <= 0 {
		limit = defaultLogsLimit
	}

	_, proj, terr := toolkit.RequireActiveTask(t.session, t.registry)
	if terr != nil {
		return toolkit.Failure(terr)
	}
	dir := proj.ActiveTaskDir

	tk, err := t.store.Load(ctx, dir, proj.ActiveTaskID)
	if err != nil {
		return nil, fmt.Errorf("current_task_read: load: %w", err)
	}
	priorUpdatedAt := tk.UpdatedAt

	var syncResult *sync.Result
	raw, readErr := os.ReadFile(task.PanelPath(dir))
	if t.cache != nil && p.RequestID != "" {
		if cached, hit := t.cache.Get(p.RequestID, time.Now()); hit {
			syncResult = &cached
		}
	}
	switch {
	case syncResult != nil:
		// Memoized sync result for this request id; the fold already ran.
	case readErr != nil && !os.IsNotExist(readErr):
		return nil, fmt.Errorf("current_task_read: read panel: %w", readErr)
	case readErr == nil:
		pp, _ := panel.Parse(string(raw))
		if pp.Title == "" {
			return toolkit.Failure(task.NewError(task.CodeParseError,
				"panel has no recoverable title; manual repair of current.md is required", nil))
		}

		var panelModified *time.Time
		if !pp.FrontMatter.LastModified.IsZero() {
			lm := pp.FrontMatter.LastModified
			panelModified = &lm
		} else if info, statErr := os.Stat(task.PanelPath(dir)); statErr == nil {
			mt := info.ModTime()
			panelModified = &mt
		}

		diff := sync.Detect(pp, tk, panelModified, pp.FrontMatter.MDVersion)
		// A completed task is frozen: panel edits are still reported via
		// panel_pending, but nothing is folded back.
		if (len(diff.ContentChanges) > 0 || len(diff.Conflicts) > 0) && !tk.Completed() {
			var result sync.Result
			mutated, merr := t.store.Mutate(ctx, dir, proj.ActiveTaskID, tk.Version, "sync", func(fresh *task.Task) error {
				result = sync.Apply(diff, fresh, t.strategy, t.skew, time.Now().UTC())
				fresh.ETag = result.MDVersion
				return nil
			})
			if merr != nil {
				if errors.Is(merr, task.ErrVersionConflict) {
					return toolkit.Failure(task.NewError(task.CodeVersionConflict, "task changed concurrently; reload and retry", nil))
				}
				return nil, fmt.Errorf("current_task_read: apply sync: %w", merr)
			}
			tk = mutated
			syncResult = &result
			if t.cache != nil && p.RequestID != "" {
				taskJSON, _ := json.Marshal(tk)
				t.cache.Put(p.RequestID, result, sync.HashBytes(raw), sync.HashBytes(taskJSON), time.Now())
			}
		}
	}

	panelPending, err := task.PanelPending(dir, priorUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("current_task_read: panel pending: %w", err)
	}
	if syncResult != nil {
		// The watcher-observed edit, if any, has just been folded in.
		t.session.ClearPanelDirty(dir)
	} else if t.session.PanelDirty(dir) {
		panelPending = true
	}

	gateOK, pendingEVR, summary := evr.TaskGate(tk, t.requireRerun)
	evrDetails := make([]map[string]string, len(pendingEVR))
	for i, pe := range pendingEVR {
		evrDetails[i] = map[string]string{"evr_id": pe.EVRID, "reason": string(pe.Reason)}
	}

	highlights, fullCount, err := task.ReadLogs(dir, limit)
	if err != nil {
		return nil, fmt.Errorf("current_task_read: read logs: %w", err)
	}

	mdVersion := panel.AggregateVersion(panel.Fingerprint(tk))

	fields := map[string]any{
		"task":            tk,
		"evr_ready":       gateOK,
		"evr_summary":     summary,
		"evr_details":     evrDetails,
		"panel_pending":   panelPending,
		"logs_highlights": highlights,
		"logs_full_count": fullCount,
		"md_version":      mdVersion,
	}
	if syncResult != nil {
		fields["sync_preview"] = syncResult
	}
	return toolkit.Success(fields)
}
