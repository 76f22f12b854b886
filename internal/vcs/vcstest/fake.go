// Package vcstest provides an in-memory vcs.Facade for tests.
package vcstest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/leighmcculloch/orbit/internal/vcs"
)

// State is the version-control state of one worktree.
type State struct {
	Branch     string // empty when detached
	LastCommit int64  // epoch seconds; zero means no commits
	Dirty      bool
	Ahead      int // commits not reachable from any base
}

// Fake emulates a git repository on an afero filesystem. The primary
// checkout is recognized by a .git directory, linked worktrees by a .git
// file whose content names the primary checkout, mirroring git itself.
type Fake struct {
	FS             afero.Fs
	Main           State
	Satellites     map[string]*State
	LocalBranches  map[string]bool
	RemoteBranches map[string]bool

	// Errors injects failures keyed by "<Method> <path>".
	Errors map[string]error
	// Mutations records every mutating call in order.
	Mutations []string
	Fetches   int
}

var _ vcs.Facade = (*Fake)(nil)

// New returns a Fake with a primary checkout at root on branch main.
func New(fs afero.Fs, root string, lastCommit int64) *Fake {
	_ = fs.MkdirAll(filepath.Join(root, ".git"), 0o755)
	return &Fake{
		FS:             fs,
		Main:           State{Branch: "main", LastCommit: lastCommit},
		Satellites:     map[string]*State{},
		LocalBranches:  map[string]bool{"main": true},
		RemoteBranches: map[string]bool{},
		Errors:         map[string]error{},
	}
}

// AddSatellite registers an existing linked worktree at path.
func (f *Fake) AddSatellite(root, path string, st State) {
	_ = f.FS.MkdirAll(path, 0o755)
	_ = afero.WriteFile(f.FS, filepath.Join(path, ".git"), []byte("gitdir: "+root), 0o644)
	if st.Branch != "" {
		f.LocalBranches[st.Branch] = true
	}
	f.Satellites[path] = &st
}

func (f *Fake) fail(method, path string) error {
	return f.Errors[method+" "+path]
}

func (f *Fake) state(path string) (*State, error) {
	if isDir, _ := afero.IsDir(f.FS, filepath.Join(path, ".git")); isDir {
		return &f.Main, nil
	}
	if st, ok := f.Satellites[path]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("fatal: %s is not a working tree", path)
}

func (f *Fake) baseExists(base string) bool {
	if f.LocalBranches[base] {
		return true
	}
	name, ok := strings.CutPrefix(base, vcs.DefaultRemote+"/")
	return ok && f.RemoteBranches[name]
}

// DiscoverRepository implements vcs.Facade.
func (f *Fake) DiscoverRepository(ctx context.Context, path string) (vcs.Repository, error) {
	if err := f.fail("DiscoverRepository", path); err != nil {
		return vcs.Repository{}, err
	}
	dir := filepath.Clean(path)
	for {
		dotGit := filepath.Join(dir, ".git")
		if isDir, err := afero.IsDir(f.FS, dotGit); err == nil {
			if isDir {
				return vcs.Repository{Root: dir}, nil
			}
			content, err := afero.ReadFile(f.FS, dotGit)
			if err != nil {
				return vcs.Repository{}, err
			}
			return vcs.Repository{Root: strings.TrimPrefix(string(content), "gitdir: ")}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return vcs.Repository{}, fmt.Errorf("%w: %s", vcs.ErrNotARepository, path)
		}
		dir = parent
	}
}

// LocalBranchExists implements vcs.Facade.
func (f *Fake) LocalBranchExists(ctx context.Context, repo vcs.Repository, name string) (bool, error) {
	return f.LocalBranches[name], f.fail("LocalBranchExists", name)
}

// RemoteBranchExists implements vcs.Facade.
func (f *Fake) RemoteBranchExists(ctx context.Context, repo vcs.Repository, name string) (bool, error) {
	return f.RemoteBranches[name], f.fail("RemoteBranchExists", name)
}

// FetchAll implements vcs.Facade.
func (f *Fake) FetchAll(ctx context.Context, repo vcs.Repository) error {
	f.Fetches++
	return f.fail("FetchAll", repo.Root)
}

// AddWorktree implements vcs.Facade.
func (f *Fake) AddWorktree(ctx context.Context, repo vcs.Repository, path, branch, base string, attachExisting bool) error {
	if err := f.fail("AddWorktree", path); err != nil {
		return err
	}
	if exists, _ := afero.Exists(f.FS, path); exists {
		return fmt.Errorf("fatal: '%s' already exists", path)
	}
	if attachExisting && !f.LocalBranches[branch] {
		return fmt.Errorf("fatal: invalid reference: %s", branch)
	}
	if !attachExisting {
		if f.LocalBranches[branch] {
			return fmt.Errorf("fatal: a branch named '%s' already exists", branch)
		}
		if !f.baseExists(base) {
			return fmt.Errorf("fatal: invalid reference: %s", base)
		}
	}
	f.Mutations = append(f.Mutations, fmt.Sprintf("add %s %s attach=%t base=%s", path, branch, attachExisting, base))
	f.AddSatellite(repo.Root, path, State{Branch: branch, LastCommit: f.Main.LastCommit})
	return nil
}

// ListWorktrees implements vcs.Facade.
func (f *Fake) ListWorktrees(ctx context.Context, repo vcs.Repository) ([]vcs.WorktreeRecord, error) {
	if err := f.fail("ListWorktrees", repo.Root); err != nil {
		return nil, err
	}
	records := []vcs.WorktreeRecord{{Path: repo.Root, Branch: f.Main.Branch}}
	paths := make([]string, 0, len(f.Satellites))
	for p := range f.Satellites {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		exists, _ := afero.DirExists(f.FS, p)
		records = append(records, vcs.WorktreeRecord{
			Path:     p,
			Branch:   f.Satellites[p].Branch,
			Detached: f.Satellites[p].Branch == "",
			Prunable: !exists,
		})
	}
	return records, nil
}

// RemoveWorktree implements vcs.Facade.
func (f *Fake) RemoveWorktree(ctx context.Context, repo vcs.Repository, path string, force bool) error {
	if err := f.fail("RemoveWorktree", path); err != nil {
		return err
	}
	st, ok := f.Satellites[path]
	if !ok {
		return fmt.Errorf("fatal: '%s' is not a working tree", path)
	}
	if st.Dirty && !force {
		return fmt.Errorf("fatal: '%s' contains modified or untracked files, use --force to delete it", path)
	}
	f.Mutations = append(f.Mutations, fmt.Sprintf("remove %s force=%t", path, force))
	delete(f.Satellites, path)
	return f.FS.RemoveAll(path)
}

// RepairWorktrees implements vcs.Facade.
func (f *Fake) RepairWorktrees(ctx context.Context, repo vcs.Repository) error {
	if err := f.fail("RepairWorktrees", repo.Root); err != nil {
		return err
	}
	f.Mutations = append(f.Mutations, "repair "+repo.Root)
	for p := range f.Satellites {
		_ = afero.WriteFile(f.FS, filepath.Join(p, ".git"), []byte("gitdir: "+repo.Root), 0o644)
	}
	return nil
}

// CurrentBranch implements vcs.Facade.
func (f *Fake) CurrentBranch(ctx context.Context, path string) (string, error) {
	if err := f.fail("CurrentBranch", path); err != nil {
		return "", err
	}
	st, err := f.state(path)
	if err != nil {
		return "", err
	}
	return st.Branch, nil
}

// LastCommitTimestamp implements vcs.Facade.
func (f *Fake) LastCommitTimestamp(ctx context.Context, path string) (int64, bool, error) {
	if err := f.fail("LastCommitTimestamp", path); err != nil {
		return 0, false, err
	}
	st, err := f.state(path)
	if err != nil {
		return 0, false, err
	}
	return st.LastCommit, st.LastCommit != 0, nil
}

// WorkingTreeDirty implements vcs.Facade.
func (f *Fake) WorkingTreeDirty(ctx context.Context, path string) (bool, error) {
	if err := f.fail("WorkingTreeDirty", path); err != nil {
		return false, err
	}
	st, err := f.state(path)
	if err != nil {
		return false, err
	}
	return st.Dirty, nil
}

// CommitsAheadOf implements vcs.Facade.
func (f *Fake) CommitsAheadOf(ctx context.Context, path, base string) (int, error) {
	if err := f.fail("CommitsAheadOf", path); err != nil {
		return 0, err
	}
	st, err := f.state(path)
	if err != nil {
		return 0, err
	}
	if st.LastCommit == 0 {
		return 0, nil
	}
	if !f.baseExists(base) {
		return 0, fmt.Errorf("fatal: ambiguous argument '%s..HEAD': unknown revision", base)
	}
	return st.Ahead, nil
}
