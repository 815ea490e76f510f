// Package project resolves and remembers which repository root a
// connection is bound to: a
// lightweight registry file at `~/.wave/projects.json` plus root
// discovery from a repo/slug hint.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Project is one registry entry: a bound repository root plus the id of
// whichever task is currently active there.
type Project struct {
	Root          string    `json:"root"`
	Slug          string    `json:"slug"`
	Repo          string    `json:"repo,omitempty"`
	ActiveTaskID  string    `json:"active_task_id,omitempty"`
	ActiveTaskDir string    `json:"active_task_dir,omitempty"`
	LastConnected time.Time `json:"last_connected"`
}

// LastConnectedHuman renders LastConnected the way `project_info` reports
// it to a caller, e.g. "3 hours ago".
func (p Project) LastConnectedHuman() string {
	if p.LastConnected.IsZero() {
		return ""
	}
	return humanize.Time(p.LastConnected)
}

// registryFile is the on-disk shape of ~/.wave/projects.json.
type registryFile struct {
	Projects []Project `json:"projects"`
}

// Registry is a process-wide, file-backed store of bound projects. It is
// deliberately simple: the whole file is read, modified, and rewritten
// under a single mutex, since the registry is small (one entry per
// project a user has ever connected to) and contention is local to one
// process, unlike the per-task lock.Manager in package lock.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry opens the registry at the default location
// (~/.wave/projects.json), creating its parent directory if needed.
func NewRegistry() (*Registry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("project: resolve home dir: %w", err)
	}
	return NewRegistryAt(filepath.Join(home, ".wave", "projects.json"))
}

// NewRegistryAt opens the registry at an explicit path, for tests.
func NewRegistryAt(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("project: create registry dir: %w", err)
	}
	return &Registry{path: path}, nil
}

func (r *Registry) load() (registryFile, error) {
	var rf registryFile
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return rf, nil
		}
		return rf, fmt.Errorf("project: read registry: %w", err)
	}
	if len(b) == 0 {
		return rf, nil
	}
	if err := json.Unmarshal(b, &rf); err != nil {
		return rf, fmt.Errorf("project: decode registry: %w", err)
	}
	return rf, nil
}

func (r *Registry) save(rf registryFile) error {
	b, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("project: marshal registry: %w", err)
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		return fmt.Errorf("project: write registry: %w", err)
	}
	return nil
}

// Connect binds a project root, recording it in the registry (or
// updating LastConnected if already present). slug/repo are metadata
// only; root is the identity key.
func (r *Registry) Connect(root, slug, repo string) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rf, err := r.load()
	if err != nil {
		return Project{}, err
	}
	root = filepath.Clean(root)
	now := time.Now().UTC()
	for i := range rf.Projects {
		if rf.Projects[i].Root == root {
			rf.Projects[i].LastConnected = now
			if slug != "" {
				rf.Projects[i].Slug = slug
			}
			if repo != "" {
				rf.Projects[i].Repo = repo
			}
			if err := r.save(rf); err != nil {
				return Project{}, err
			}
			return rf.Projects[i], nil
		}
	}
	p := Project{Root: root, Slug: slug, Repo: repo, LastConnected: now}
	rf.Projects = append(rf.Projects, p)
	if err := r.save(rf); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Get returns the registered Project for root, if any.
func (r *Registry) Get(root string) (Project, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, err := r.load()
	if err != nil {
		return Project{}, false, err
	}
	root = filepath.Clean(root)
	for _, p := range rf.Projects {
		if p.Root == root {
			return p, true, nil
		}
	}
	return Project{}, false, nil
}

// SetActiveTask records which task directory is "current" for a project
// root, so a later connection to the same root resumes the same task
// without the caller needing to pass a task id around.
func (r *Registry) SetActiveTask(root, taskID, taskDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, err := r.load()
	if err != nil {
		return err
	}
	root = filepath.Clean(root)
	for i := range rf.Projects {
		if rf.Projects[i].Root == root {
			rf.Projects[i].ActiveTaskID = taskID
			rf.Projects[i].ActiveTaskDir = taskDir
			return r.save(rf)
		}
	}
	return fmt.Errorf("project: root not connected: %s", root)
}

// ClearActiveTask removes the active-task binding, e.g. on
// current_task_complete.
func (r *Registry) ClearActiveTask(root string) error {
	return r.SetActiveTask(root, "", "")
}

// List returns every registered project, most recently connected first.
func (r *Registry) List() ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(rf.Projects, func(i, j int) bool {
		return rf.Projects[i].LastConnected.After(rf.Projects[j].LastConnected)
	})
	return rf.Projects, nil
}

// ErrNotFound is returned by Resolve when a hint matches zero
// candidates.
var ErrNotFound = fmt.Errorf("project: not found")

// ErrAmbiguous is returned by Resolve when a hint matches more than one
// candidate; Candidates carries the matches so
// the caller can surface them.
type ErrAmbiguous struct {
	Candidates []string
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("project: ambiguous, %d candidates", len(e.Candidates))
}

// Resolve turns exactly one of (root, slug, repo) into a validated,
// absolute project root (connect_project binds by exactly one of
// root/slug/repo). A root hint is validated directly; a slug/repo hint is matched
// against the registry's already-known projects, since this process has
// no independent way to discover repositories it has never connected to
// before.
func Resolve(root, slug, repo string, reg *Registry) (string, error) {
	set := 0
	for _, v := range []string{root, slug, repo} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return "", fmt.Errorf("project: exactly one of root/slug/repo must be set")
	}

	if root != "" {
		return validateRoot(root)
	}

	projects, err := reg.List()
	if err != nil {
		return "", err
	}
	var matches []Project
	for _, p := range projects {
		if slug != "" && p.Slug == slug {
			matches = append(matches, p)
		}
		if repo != "" && p.Repo == repo {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0].Root, nil
	default:
		cands := make([]string, len(matches))
		for i, m := range matches {
			cands[i] = m.Root
		}
		return "", &ErrAmbiguous{Candidates: cands}
	}
}

// validateRoot checks a candidate root is a readable directory
// (INVALID_ROOT otherwise).
func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("project: resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project: invalid root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project: invalid root %s: not a directory", abs)
	}
	return abs, nil
}

// SlugFromTitle derives a filesystem-safe slug from a task title, for
// Store.Dir's `<slug>--<id8>` directory naming.
func SlugFromTitle(title string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		s = "task"
	}
	return s
}
