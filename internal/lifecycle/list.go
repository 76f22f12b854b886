package lifecycle

import (
	"context"

	"github.com/leighmcculloch/orbit/internal/worktree"
)

// ListOptions configures List.
type ListOptions struct {
	// StaleDays, when set, keeps only worktrees whose last commit is at
	// least that many days old. Worktrees without commits are dropped.
	StaleDays *float64
	Base      string
}

// ListResult is the outcome of List.
type ListResult struct {
	Base      string
	Worktrees []worktree.Info
}

// List inspects every worktree against the base branch, in the order the
// backend reports them.
func (m *Manager) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	ws, err := m.discover(ctx)
	if err != nil {
		return ListResult{}, err
	}
	base, err := m.resolveBase(ctx, ws, opts.Base)
	if err != nil {
		return ListResult{}, err
	}
	infos, err := m.inspectAll(ctx, ws, base)
	if err != nil {
		return ListResult{}, err
	}

	if opts.StaleDays != nil {
		stale := infos[:0]
		for _, info := range infos {
			if info.IsStale(*opts.StaleDays) {
				stale = append(stale, info)
			}
		}
		infos = stale
	}
	return ListResult{Base: base, Worktrees: infos}, nil
}
