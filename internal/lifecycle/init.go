package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/leighmcculloch/orbit/internal/config"
)

// InitResult is the outcome of Init.
type InitResult struct {
	Root string
	// Converted is true when this call converted the layout.
	Converted bool
	// ConfigPath is the project settings file.
	ConfigPath string
	// ConfigCreated is false when the file already existed.
	ConfigCreated bool
}

// Init converts the repository to the worktree layout and writes the
// default project settings unless a file is already there.
func (m *Manager) Init(ctx context.Context) (InitResult, error) {
	ws, err := m.discover(ctx)
	if err != nil {
		return InitResult{}, err
	}
	result := InitResult{Root: ws.root, Converted: !ws.converted}
	if ws, err = m.convert(ctx, ws); err != nil {
		return InitResult{}, err
	}

	path, exists, err := m.projectPath(ws)
	if err != nil {
		return result, err
	}
	result.ConfigPath = path
	if !exists {
		if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return result, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := afero.WriteFile(m.fs, path, []byte(config.DefaultProjectTemplate()), 0o644); err != nil {
			return result, fmt.Errorf("writing %s: %w", path, err)
		}
		result.ConfigCreated = true
	}
	return result, nil
}

// StatusResult summarizes the repository and its layout.
type StatusResult struct {
	Root      string
	Anchor    string
	Converted bool
	Worktrees int
	// Base is empty when no base branch can be resolved.
	Base string
}

// Status reports the layout of the repository containing Dir.
func (m *Manager) Status(ctx context.Context) (StatusResult, error) {
	ws, err := m.discover(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	paths, err := m.registry().List(ctx, ws.repo)
	if err != nil {
		return StatusResult{}, err
	}
	base, err := m.resolveBase(ctx, ws, "")
	if err != nil && !errors.Is(err, ErrNoBaseBranch) {
		return StatusResult{}, err
	}
	return StatusResult{
		Root:      ws.root,
		Anchor:    ws.repo.Root,
		Converted: ws.converted,
		Worktrees: len(paths),
		Base:      base,
	}, nil
}
