// Package session holds the state that outlives a single tool call within
// a connection: which project root `connect_project` bound this session
// to, plus the watcher's advisory panel-dirty flags. It is deliberately
// tiny — everything else
// (the active task, the task aggregate, the panel) is re-read from disk
// on every call through package task/project, since nothing may suspend
// outside lock acquisition, file I/O, and cache eviction.
package session

import "sync"

// State is the process-local binding established by connect_project. A
// stdio connection is one process (one JSON-RPC tool-call channel per
// connection), so a single State shared across every tool
// constructor is sufficient; it is not persisted and does not survive a
// restart — the project registry (package project) is what survives
// across processes.
type State struct {
	mu    sync.RWMutex
	root  string
	dirty map[string]struct{}
}

// New returns an unconnected session.
func New() *State {
	return &State{dirty: make(map[string]struct{})}
}

// Connect binds the session to root.
func (s *State) Connect(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
}

// Root returns the bound project root, or "" if unconnected.
func (s *State) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Connected reports whether the session is bound to a project.
func (s *State) Connected() bool {
	return s.Root() != ""
}

// MarkPanelDirty records that a task directory's panel file was written
// outside this process (the fsnotify watcher calls this). The flag is
// advisory: panel_pending is still decided by the panel file's mtime, the
// flag only lets read/info paths notice an edit without a stat.
func (s *State) MarkPanelDirty(taskDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[taskDir] = struct{}{}
}

// PanelDirty reports whether taskDir's panel has a watcher-observed edit
// not yet folded in by a sync pass.
func (s *State) PanelDirty(taskDir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirty[taskDir]
	return ok
}

// ClearPanelDirty drops the dirty flag after a sync pass has folded the
// edit back into the task.
func (s *State) ClearPanelDirty(taskDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, taskDir)
}
