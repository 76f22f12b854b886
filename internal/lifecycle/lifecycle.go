// Package lifecycle creates, lists, and removes worktrees of a repository
// kept in the anchor/satellites layout. It applies removal policy on top of
// facts from the worktree package and performs every mutation through the
// vcs.Facade.
//
// Nothing is cached between operations; each call re-discovers the
// workspace and re-reads the worktree set.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/leighmcculloch/orbit/internal/config"
	"github.com/leighmcculloch/orbit/internal/editor"
	"github.com/leighmcculloch/orbit/internal/layout"
	"github.com/leighmcculloch/orbit/internal/vcs"
	"github.com/leighmcculloch/orbit/internal/worktree"
)

// Reporter receives user-facing progress.
type Reporter interface {
	Step(msg string)
	Created(path, branch string, attached bool)
	CleanupPlan(plan CleanupPlan, dryRun bool)
	Removed(name string)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Options configures a Manager. Nil collaborators get defaults.
type Options struct {
	// Dir is where workspace discovery starts.
	Dir        string
	FS         afero.Fs
	VCS        vcs.Facade
	Global     config.Global
	Reporter   Reporter
	Confirmer  Confirmer
	Launcher   editor.Launcher
	HookRunner HookRunner
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Manager runs lifecycle operations against the repository containing Dir.
type Manager struct {
	dir       string
	fs        afero.Fs
	vcs       vcs.Facade
	layout    *layout.Manager
	global    config.Global
	reporter  Reporter
	confirmer Confirmer
	launcher  editor.Launcher
	hooks     HookRunner
	logger    *slog.Logger
	clock     func() time.Time
}

// NewManager returns a Manager for opts.
func NewManager(opts Options) *Manager {
	m := &Manager{
		dir:       opts.Dir,
		fs:        opts.FS,
		vcs:       opts.VCS,
		global:    opts.Global,
		reporter:  opts.Reporter,
		confirmer: opts.Confirmer,
		launcher:  opts.Launcher,
		hooks:     opts.HookRunner,
		logger:    opts.Logger,
		clock:     opts.Clock,
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.vcs == nil {
		m.vcs = vcs.NewGit()
	}
	if m.reporter == nil {
		m.reporter = nopReporter{}
	}
	if m.confirmer == nil {
		m.confirmer = declineConfirmer{}
	}
	if m.launcher == nil {
		m.launcher = editor.NewExec()
	}
	if m.hooks == nil {
		m.hooks = ShellHookRunner{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	m.layout = layout.NewManager(m.fs)
	return m
}

type nopReporter struct{}

func (nopReporter) Step(string)                  {}
func (nopReporter) Created(string, string, bool)  {}
func (nopReporter) CleanupPlan(CleanupPlan, bool) {}
func (nopReporter) Removed(string)                {}

type declineConfirmer struct{}

func (declineConfirmer) Confirm(string) (bool, error) { return false, nil }

// workspace is the result of one discovery.
type workspace struct {
	root      string
	converted bool
	repo      vcs.Repository
	project   config.Project
}

// container is the directory worktree names are relative to.
func (ws workspace) container() string {
	if ws.converted {
		return layout.SatellitesPath(ws.root)
	}
	return ws.root
}

func (ws workspace) pathFor(name string) string {
	return layout.SatellitePath(ws.root, ws.converted, name)
}

// displayName is the worktree's name relative to the container, or its leaf
// for anything outside it.
func (ws workspace) displayName(path string) string {
	rel, err := filepath.Rel(ws.container(), path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// discover finds the layout root and repository containing Dir. A layout
// whose conversion was interrupted is returned unconverted, rooted where
// the conversion started, so that convert resumes it.
func (m *Manager) discover(ctx context.Context) (workspace, error) {
	ws, err := m.locate(ctx)
	if err != nil {
		return workspace{}, err
	}
	if ws.project, err = m.project(ws); err != nil {
		return workspace{}, err
	}
	return ws, nil
}

func (m *Manager) locate(ctx context.Context) (workspace, error) {
	if root, ok := m.layout.Discover(m.dir); ok {
		if !m.layout.IsConverted(root) {
			if _, err := m.layout.Detect(root); err != nil {
				return workspace{}, err
			}
		}
		repo, err := m.vcs.DiscoverRepository(ctx, layout.AnchorPath(root))
		if err != nil {
			return workspace{}, err
		}
		return workspace{root: root, converted: m.layout.IsConverted(root), repo: repo}, nil
	}
	if ws, ok, err := m.resume(ctx, m.dir); ok || err != nil {
		return ws, err
	}

	repo, err := m.vcs.DiscoverRepository(ctx, m.dir)
	if err != nil {
		return workspace{}, err
	}
	// Dir may be below the checkout, or in a linked worktree outside it.
	if ws, ok, err := m.resume(ctx, repo.Root); ok || err != nil {
		return ws, err
	}
	ws := workspace{root: repo.Root, repo: repo}
	if filepath.Base(repo.Root) == layout.AnchorDir {
		if parent := filepath.Dir(repo.Root); m.layout.IsConverted(parent) {
			ws.root = parent
			ws.converted = true
		}
	}
	return ws, nil
}

// resume returns the workspace of an interrupted conversion dir belongs to.
func (m *Manager) resume(ctx context.Context, dir string) (workspace, bool, error) {
	in, ok, err := m.layout.FindInterrupted(dir)
	if err != nil || !ok {
		return workspace{}, false, err
	}
	m.logger.Debug("found interrupted conversion", "root", in.Root, "state", in.State.String(), "checkout", in.Checkout)
	repo, err := m.vcs.DiscoverRepository(ctx, in.Checkout)
	if err != nil {
		return workspace{}, false, err
	}
	return workspace{root: in.Root, repo: repo}, true, nil
}

// convert brings ws into the converted layout and repoints the linked
// worktrees at the moved anchor.
func (m *Manager) convert(ctx context.Context, ws workspace) (workspace, error) {
	if ws.converted {
		return ws, nil
	}
	m.reporter.Step("Converting to worktree layout")
	if err := m.layout.Convert(ws.root); err != nil {
		return ws, fmt.Errorf("converting %s: %w", ws.root, err)
	}
	anchor := vcs.Repository{Root: layout.AnchorPath(ws.root)}
	if err := m.vcs.RepairWorktrees(ctx, anchor); err != nil {
		return ws, fmt.Errorf("repairing worktrees after conversion: %w", err)
	}
	repo, err := m.vcs.DiscoverRepository(ctx, anchor.Root)
	if err != nil {
		return ws, err
	}
	m.logger.Debug("converted layout", "root", ws.root, "anchor", repo.Root)
	return workspace{root: ws.root, converted: true, repo: repo, project: ws.project}, nil
}

// projectPath finds the project settings file in the layout marker
// directory, or the copy committed in the anchor checkout when the marker
// has none. ok is false when neither exists.
func (m *Manager) projectPath(ws workspace) (path string, ok bool, err error) {
	for _, dir := range []string{ws.root, ws.repo.Root} {
		path := filepath.Join(layout.MarkerPath(dir), config.ProjectFile)
		exists, err := afero.Exists(m.fs, path)
		if err != nil {
			return "", false, fmt.Errorf("checking %s: %w", path, err)
		}
		if exists {
			return path, true, nil
		}
	}
	return filepath.Join(layout.MarkerPath(ws.root), config.ProjectFile), false, nil
}

func (m *Manager) project(ws workspace) (config.Project, error) {
	path, ok, err := m.projectPath(ws)
	if err != nil || !ok {
		return config.Project{}, err
	}
	return config.LoadProject(m.fs, path)
}

// baseRef returns the ref to use for name: the local branch when it exists,
// else the remote-tracking ref.
func (m *Manager) baseRef(ctx context.Context, repo vcs.Repository, name string) (string, bool, error) {
	local, err := m.vcs.LocalBranchExists(ctx, repo, name)
	if err != nil {
		return "", false, err
	}
	if local {
		return name, true, nil
	}
	remoteName := strings.TrimPrefix(name, vcs.DefaultRemote+"/")
	remote, err := m.vcs.RemoteBranchExists(ctx, repo, remoteName)
	if err != nil {
		return "", false, err
	}
	if remote {
		return vcs.DefaultRemote + "/" + remoteName, true, nil
	}
	return "", false, nil
}

var conventionalBases = []string{"main", "master"}

// resolveBase picks the base branch: explicit, then the project setting,
// then main or master locally, then on the remote.
func (m *Manager) resolveBase(ctx context.Context, ws workspace, explicit string) (string, error) {
	name := explicit
	if name == "" {
		name = ws.project.Worktree.BaseBranch
	}
	if name != "" {
		ref, ok, err := m.baseRef(ctx, ws.repo, name)
		if err != nil {
			return "", fmt.Errorf("resolving base branch %s: %w", name, err)
		}
		if !ok {
			return "", fmt.Errorf("%w: branch %q does not exist", ErrNoBaseBranch, name)
		}
		return ref, nil
	}

	for _, candidate := range conventionalBases {
		ok, err := m.vcs.LocalBranchExists(ctx, ws.repo, candidate)
		if err != nil {
			return "", fmt.Errorf("resolving base branch: %w", err)
		}
		if ok {
			return candidate, nil
		}
	}
	for _, candidate := range conventionalBases {
		ok, err := m.vcs.RemoteBranchExists(ctx, ws.repo, candidate)
		if err != nil {
			return "", fmt.Errorf("resolving base branch: %w", err)
		}
		if ok {
			return vcs.DefaultRemote + "/" + candidate, nil
		}
	}
	return "", fmt.Errorf("%w: none of main, master, %s/main, %s/master exist; pass --base or set worktree.base_branch",
		ErrNoBaseBranch, vcs.DefaultRemote, vcs.DefaultRemote)
}

var reservedNames = map[string]bool{
	layout.AnchorDir:     true,
	layout.SatellitesDir: true,
	layout.MarkerDir:     true,
	".git":               true,
}

// validateName checks that name maps to a path inside the worktree
// container. Names may contain slashes, as branch names do.
func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: %q starts with a dash", ErrInvalidName, name)
	case filepath.IsAbs(name) || strings.HasPrefix(name, "/"):
		return fmt.Errorf("%w: %q is an absolute path", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		switch {
		case seg == "", seg == ".", seg == "..":
			return fmt.Errorf("%w: %q has an empty or relative path segment", ErrInvalidName, name)
		case reservedNames[seg]:
			return fmt.Errorf("%w: %q is reserved", ErrInvalidName, seg)
		}
	}
	return nil
}

func (m *Manager) registry() *worktree.Registry {
	return worktree.NewRegistry(m.vcs, m.logger)
}

// inspectAll inspects every registered worktree at one instant. Display
// names are relative to the worktree container.
func (m *Manager) inspectAll(ctx context.Context, ws workspace, base string) ([]worktree.Info, error) {
	paths, err := m.registry().List(ctx, ws.repo)
	if err != nil {
		return nil, err
	}
	inspector := worktree.NewInspector(m.vcs, ws.repo.Root, m.clock())
	infos := make([]worktree.Info, 0, len(paths))
	for _, p := range paths {
		info, err := inspector.Inspect(ctx, p, base)
		if err != nil {
			return nil, err
		}
		info.Name = ws.displayName(p)
		infos = append(infos, info)
	}
	return infos, nil
}
