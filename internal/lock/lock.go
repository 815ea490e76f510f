// Package lock implements the cross-process write/read lock manager: a
// filesystem mutex keyed by task id, backed by a sentinel file whose
// JSON payload carries the staleness/eviction metadata an OS advisory
// lock alone doesn't express.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Kind distinguishes a write lock (exclusive) from a read lock (shared).
type Kind string

const (
	KindWrite Kind = "write"
	KindRead  Kind = "read"
)

// Sentinel is the JSON payload written into the sentinel file.
type Sentinel struct {
	ProcessID string    `json:"processId"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"taskId"`
	TimeoutMS int64     `json:"timeout"`
	Type      Kind      `json:"type"`
}

// Config holds the retry/timeout defaults for lock acquisition.
type Config struct {
	RetryInterval time.Duration // default 100ms
	AcquireTimeout time.Duration // default 30s
	StaleAfter    time.Duration // lock age beyond which it may be evicted
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{RetryInterval: 100 * time.Millisecond, AcquireTimeout: 30 * time.Second, StaleAfter: 30 * time.Second}
}

// Handle is a held lock; callers must call Release when done.
type Handle struct {
	m       *Manager
	taskDir string
	taskID  string
	kind    Kind
	flock   *flock.Flock
	evicted bool
}

// EvictionEvent is recorded when a contender breaks a stale lock, for the
// audit log.
type EvictionEvent struct {
	TaskID    string
	StaleSentinel Sentinel
	EvictedBy string
	At        time.Time
}

// Manager serializes lock acquisition per task across processes, using
// one sentinel file per task directory plus an OS advisory flock to
// avoid two processes racing on the sentinel file itself.
type Manager struct {
	mu         sync.Mutex
	processID  string
	cfg        Config
	held       map[string]Kind // taskID -> kind currently held by this process
	Evictions  []EvictionEvent
}

// NewManager constructs a Manager identified by processID (typically
// "<pid>@<hostname>" or similar, supplied by the caller).
func NewManager(processID string, cfg Config) *Manager {
	return &Manager{processID: processID, cfg: cfg, held: map[string]Kind{}}
}

func sentinelPath(taskDir string) string { return filepath.Join(taskDir, ".lock.json") }
func flockPath(taskDir string) string    { return filepath.Join(taskDir, ".lock.flock") }

// SentinelPath returns the on-disk path of a task directory's lock
// sentinel file, for diagnostic tools that need to inspect it without
// acquiring the lock.
func SentinelPath(taskDir string) string { return sentinelPath(taskDir) }

// ReadSentinelFile reads and decodes the sentinel at path. It returns the
// same error os.ReadFile would (including a not-exist error) when no
// sentinel is present.
func ReadSentinelFile(path string) (Sentinel, error) { return readSentinel(path) }

// IsStale reports whether s would be evicted by a contender claiming the
// lock at the given instant, mirroring tryClaim's staleness check.
func IsStale(s Sentinel, now time.Time) bool {
	return now.Sub(s.Timestamp) > time.Duration(s.TimeoutMS)*time.Millisecond
}

// Acquire blocks until a lock of the given kind is obtained for taskID,
// the context is cancelled, or cfg.AcquireTimeout elapses — whichever
// comes first. currentHeldLocks must list any lock ids (task ids)
// this same caller already holds, so the deadlock-avoidance check below
// can tell a legitimate re-entrant acquisition from a real conflict.
func (m *Manager) Acquire(ctx context.Context, taskDir, taskID string, kind Kind, currentHeldLocks []string) (*Handle, error) {
	if err := m.checkDeadlockAvoidance(taskID, kind, currentHeldLocks); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.cfg.AcquireTimeout)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: create task dir: %w", err)
	}
	fl := flock.New(flockPath(taskDir))

	for {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock: flock: %w", err)
		}
		if locked {
			ok, evictedSentinel, err := m.tryClaim(taskDir, taskID, kind)
			if err != nil {
				_ = fl.Unlock()
				return nil, err
			}
			if ok {
				if evictedSentinel != nil {
					m.mu.Lock()
					m.Evictions = append(m.Evictions, EvictionEvent{
						TaskID: taskID, StaleSentinel: *evictedSentinel, EvictedBy: m.processID, At: time.Now(),
					})
					m.mu.Unlock()
				}
				m.mu.Lock()
				m.held[taskID] = kind
				m.mu.Unlock()
				return &Handle{m: m, taskDir: taskDir, taskID: taskID, kind: kind, flock: fl}, nil
			}
			_ = fl.Unlock()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: acquisition cancelled: %w", ctx.Err())
		case <-time.After(m.cfg.RetryInterval):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock: timed out acquiring %s lock for task %s", kind, taskID)
		}
	}
}

// checkDeadlockAvoidance rejects acquiring a second write lock on the
// same task unless the caller already declares holding it.
func (m *Manager) checkDeadlockAvoidance(taskID string, kind Kind, currentHeldLocks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, already := m.held[taskID]
	if !already {
		return nil
	}
	for _, id := range currentHeldLocks {
		if id == taskID {
			return nil
		}
	}
	if existing == KindWrite || kind == KindWrite {
		return fmt.Errorf("lock: would require holding a second write lock on task %s", taskID)
	}
	return nil
}

// tryClaim reads the sentinel file (if any), decides whether it's stale
// or compatible (a read sentinel does not block a read claim), and writes
// a new sentinel if the claim succeeds. Returns the evicted sentinel, if
// any, so the caller can log it. The exclusive flock taken in Acquire
// stays held until Release, so at most one handle, read or write, holds a
// task directory at a time; concurrent readers are not admitted.
func (m *Manager) tryClaim(taskDir, taskID string, kind Kind) (ok bool, evicted *Sentinel, err error) {
	path := sentinelPath(taskDir)
	existing, readErr := readSentinel(path)

	switch {
	case readErr != nil:
		// no sentinel, or unreadable: treat as free.
	case time.Since(existing.Timestamp) > time.Duration(existing.TimeoutMS)*time.Millisecond:
		evicted = &existing
	case existing.Type == KindRead && kind == KindRead:
		// multiple readers coexist; nothing to evict, claim proceeds
		// by appending — simplified here to a single-sentinel model
		// since each read claim still refreshes the timestamp.
	default:
		return false, nil, nil
	}

	s := Sentinel{
		ProcessID: m.processID, Timestamp: time.Now(), TaskID: taskID,
		TimeoutMS: m.cfg.StaleAfter.Milliseconds(), Type: kind,
	}
	b, mErr := json.Marshal(s)
	if mErr != nil {
		return false, nil, fmt.Errorf("lock: marshal sentinel: %w", mErr)
	}
	if wErr := os.WriteFile(path, b, 0o644); wErr != nil {
		return false, nil, fmt.Errorf("lock: write sentinel: %w", wErr)
	}
	return true, evicted, nil
}

func readSentinel(path string) (Sentinel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Sentinel{}, err
	}
	var s Sentinel
	if err := json.Unmarshal(b, &s); err != nil {
		return Sentinel{}, err
	}
	return s, nil
}

// Release removes this process's hold on the lock: it clears the
// in-memory bookkeeping, deletes the sentinel file while the advisory
// flock is still held, and then unlocks the flock, so the next claimant
// finds the lock free. A crashed process's sentinel is never released
// this way and is reclaimed via the staleness check instead.
func (h *Handle) Release() error {
	h.m.mu.Lock()
	delete(h.m.held, h.taskID)
	h.m.mu.Unlock()
	if err := os.Remove(sentinelPath(h.taskDir)); err != nil && !os.IsNotExist(err) {
		_ = h.flock.Unlock()
		return fmt.Errorf("lock: remove sentinel: %w", err)
	}
	return h.flock.Unlock()
}
