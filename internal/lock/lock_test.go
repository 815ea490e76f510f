package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease_WriteThenWriteFromSecondProcessSucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	m1 := NewManager("proc-1", DefaultConfig())
	m2 := NewManager("proc-2", Config{RetryInterval: 5 * time.Millisecond, AcquireTimeout: 100 * time.Millisecond, StaleAfter: 30 * time.Second})

	h1, err := m1.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m2.Acquire(ctx, dir, "task-1", KindWrite, nil)
	assert.Error(t, err, "a second process must not acquire a write lock while the first holds it")

	require.NoError(t, h1.Release())

	h2, err := m2.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestCheckDeadlockAvoidance_RejectsSecondWriteFromSameManagerWithoutDeclaring(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("proc-1", DefaultConfig())

	h1, err := m.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	defer h1.Release()

	_, err = m.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	assert.Error(t, err, "acquiring a second write lock on the same task without declaring it already held must fail fast")
}

func TestCheckDeadlockAvoidance_AllowsReentrantWhenDeclared(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("proc-1", DefaultConfig())

	h1, err := m.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	defer h1.Release()

	err = m.checkDeadlockAvoidance("task-1", KindWrite, []string{"task-1"})
	assert.NoError(t, err, "declaring the task as already held permits re-entrant acquisition checks")
}

func TestAcquire_StaleLockIsEvicted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	stale := Sentinel{ProcessID: "dead-proc", Timestamp: time.Now().Add(-time.Hour), TaskID: "task-1", TimeoutMS: 30000, Type: KindWrite}
	b, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sentinelPath(dir), b, 0o644))

	m := NewManager("proc-2", Config{RetryInterval: 5 * time.Millisecond, AcquireTimeout: time.Second, StaleAfter: 30 * time.Second})
	h, err := m.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	defer h.Release()

	require.Len(t, m.Evictions, 1)
	assert.Equal(t, "dead-proc", m.Evictions[0].StaleSentinel.ProcessID)
	assert.Equal(t, "proc-2", m.Evictions[0].EvictedBy)
}

func TestAcquire_WritesSentinelFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("proc-1", DefaultConfig())
	h, err := m.Acquire(context.Background(), dir, "task-1", KindRead, nil)
	require.NoError(t, err)
	defer h.Release()

	b, err := os.ReadFile(filepath.Join(dir, ".lock.json"))
	require.NoError(t, err)
	var s Sentinel
	require.NoError(t, json.Unmarshal(b, &s))
	assert.Equal(t, "proc-1", s.ProcessID)
	assert.Equal(t, KindRead, s.Type)
}

func TestAcquire_ContextCancellationAbortsWait(t *testing.T) {
	dir := t.TempDir()
	m1 := NewManager("proc-1", DefaultConfig())
	h1, err := m1.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	defer h1.Release()

	m2 := NewManager("proc-2", Config{RetryInterval: 5 * time.Millisecond, AcquireTimeout: time.Minute, StaleAfter: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = m2.Acquire(ctx, dir, "task-1", KindWrite, nil)
	assert.Error(t, err)
}

func TestRelease_ClearsHeldBookkeeping(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("proc-1", DefaultConfig())
	h, err := m.Acquire(context.Background(), dir, "task-1", KindWrite, nil)
	require.NoError(t, err)
	require.NoError(t, h.Release())

	m.mu.Lock()
	_, stillHeld := m.held["task-1"]
	m.mu.Unlock()
	assert.False(t, stillHeld)
}
