package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/leighmcculloch/orbit/internal/worktree"
)

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Name  string
	Force bool
	Base  string
}

// Remove deletes the worktree called opts.Name. Without Force, a worktree
// with uncommitted changes or unmerged commits is left untouched and a
// *BlockedRemovalError lists every reason.
func (m *Manager) Remove(ctx context.Context, opts RemoveOptions) error {
	if err := validateName(opts.Name); err != nil {
		return err
	}
	ws, err := m.discover(ctx)
	if err != nil {
		return err
	}

	path := ws.pathFor(opts.Name)
	exists, err := afero.DirExists(m.fs, path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("worktree %s: %w at %s", opts.Name, ErrNotFound, path)
	}

	safe := false
	info, err := m.inspectOne(ctx, ws, path, opts.Base)
	switch {
	case err == nil:
		safe = info.Safety.IsSafeToRemove()
	case opts.Force:
		m.logger.Debug("inspection failed, forcing removal", "path", path, "error", err)
	default:
		return err
	}
	if !safe && !opts.Force {
		return &BlockedRemovalError{Name: opts.Name, Reasons: info.Safety.BlockedReasons()}
	}

	if err := m.vcs.RemoveWorktree(ctx, ws.repo, path, !safe); err != nil {
		return fmt.Errorf("removing worktree %s: %w", opts.Name, err)
	}
	m.pruneEmptyParents(path, ws.container())
	m.reporter.Removed(opts.Name)
	return nil
}

func (m *Manager) inspectOne(ctx context.Context, ws workspace, path, explicitBase string) (worktree.Info, error) {
	base, err := m.resolveBase(ctx, ws, explicitBase)
	if err != nil {
		return worktree.Info{}, err
	}
	return worktree.NewInspector(m.vcs, ws.repo.Root, m.clock()).Inspect(ctx, path, base)
}

// pruneEmptyParents removes directories left empty between a removed
// worktree named with slashes and the container.
func (m *Manager) pruneEmptyParents(path, container string) {
	container = filepath.Clean(container)
	for dir := filepath.Dir(path); dir != container && len(dir) > len(container); dir = filepath.Dir(dir) {
		empty, err := afero.IsEmpty(m.fs, dir)
		if err != nil || !empty {
			return
		}
		if err := m.fs.Remove(dir); err != nil {
			m.logger.Debug("could not remove empty directory", "path", dir, "error", err)
			return
		}
	}
}
