package lifecycle

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/leighmcculloch/orbit/internal/editor"
	"github.com/leighmcculloch/orbit/internal/layout"
)

// CreateOptions configures Create.
type CreateOptions struct {
	// Name is the worktree directory under satellites/ and the branch name.
	Name string
	// Base is the starting point of a new branch. Empty means resolved.
	Base string
	// Editor overrides the configured editor.
	Editor string
	NoOpen bool
}

// Create adds a worktree called opts.Name, converting the layout first if
// needed, and returns its path. An existing local branch of the same name is
// checked out; otherwise the branch is created from the base branch.
//
// A failing post-create hook returns a *HookError and leaves the worktree in
// place.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if err := validateName(opts.Name); err != nil {
		return "", err
	}
	kind, open, err := m.editorFor(opts)
	if err != nil {
		return "", err
	}

	ws, err := m.discover(ctx)
	if err != nil {
		return "", err
	}

	// Everything that can refuse the request is checked before the layout
	// is converted.
	path := layout.SatellitePath(ws.root, true, opts.Name)
	if ws.converted {
		exists, err := afero.Exists(m.fs, path)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
		if exists {
			return "", fmt.Errorf("worktree %s: %w at %s", opts.Name, ErrAlreadyExists, path)
		}
	}
	records, err := m.vcs.ListWorktrees(ctx, ws.repo)
	if err != nil {
		return "", fmt.Errorf("listing worktrees: %w", err)
	}
	for _, rec := range records {
		if rec.Branch == opts.Name {
			return "", fmt.Errorf("branch %s: %w: checked out at %s", opts.Name, ErrAlreadyExists, rec.Path)
		}
	}

	if m.global.AutoFetch {
		m.reporter.Step("Fetching from remote")
		if err := m.vcs.FetchAll(ctx, ws.repo); err != nil {
			m.logger.Debug("fetch failed, continuing with local refs", "error", err)
		}
	}

	attach, err := m.vcs.LocalBranchExists(ctx, ws.repo, opts.Name)
	if err != nil {
		return "", fmt.Errorf("checking branch %s: %w", opts.Name, err)
	}
	var base string
	if !attach {
		base, err = m.resolveBase(ctx, ws, opts.Base)
		if err != nil {
			return "", err
		}
	}

	ws, err = m.convert(ctx, ws)
	if err != nil {
		return "", err
	}
	if err := m.vcs.AddWorktree(ctx, ws.repo, path, opts.Name, base, attach); err != nil {
		return "", fmt.Errorf("creating worktree %s: %w", opts.Name, err)
	}
	m.reporter.Created(path, opts.Name, attach)

	for _, command := range ws.project.Hooks.PostCreate {
		m.reporter.Step("Running " + command)
		if err := m.hooks.Run(ctx, path, command); err != nil {
			return path, err
		}
	}

	if open {
		if err := m.launcher.Launch(kind, path); err != nil {
			m.logger.Warn("could not open editor", "editor", kind.String(), "path", path, "error", err)
		}
	}
	return path, nil
}

// editorFor picks the editor to open, rejecting unknown names before
// anything is changed.
func (m *Manager) editorFor(opts CreateOptions) (editor.Kind, bool, error) {
	if opts.NoOpen {
		return 0, false, nil
	}
	name := opts.Editor
	if name == "" {
		name = m.global.Editor
	}
	if name == "" {
		return 0, false, nil
	}
	kind, err := editor.ParseKind(name)
	if err != nil {
		return 0, false, err
	}
	return kind, true, nil
}
