package lifecycle

import (
	"context"
	"fmt"

	"github.com/leighmcculloch/orbit/internal/worktree"
)

// CleanupOptions configures Cleanup.
type CleanupOptions struct {
	OlderThanDays float64
	DryRun        bool
	// Force skips the confirmation prompt.
	Force bool
	// IncludeUnmerged makes unsafe stale worktrees candidates too. They are
	// removed forcibly.
	IncludeUnmerged bool
	Base            string
}

// CleanupPlan partitions the non-anchor worktrees of one cleanup pass.
// Every worktree lands in exactly one set.
type CleanupPlan struct {
	Threshold float64
	// Candidates are stale and either safe or included regardless.
	Candidates []worktree.Info
	// Skipped are stale but unsafe.
	Skipped []worktree.Info
	// Fresh are younger than the threshold or have no commits.
	Fresh []worktree.Info
}

// Partition splits infos into a CleanupPlan. Anchor entries are dropped.
func Partition(infos []worktree.Info, threshold float64, includeUnmerged bool) CleanupPlan {
	plan := CleanupPlan{Threshold: threshold}
	for _, info := range infos {
		switch {
		case info.IsAnchor:
		case !info.IsStale(threshold):
			plan.Fresh = append(plan.Fresh, info)
		case info.Safety.IsSafeToRemove() || includeUnmerged:
			plan.Candidates = append(plan.Candidates, info)
		default:
			plan.Skipped = append(plan.Skipped, info)
		}
	}
	return plan
}

// Cleanup removes stale worktrees. The plan is reported before anything is
// changed. Declining the confirmation returns ErrCancelled. The first
// failed removal stops the pass with a *RemovalError.
func (m *Manager) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupPlan, error) {
	ws, err := m.discover(ctx)
	if err != nil {
		return CleanupPlan{}, err
	}
	base, err := m.resolveBase(ctx, ws, opts.Base)
	if err != nil {
		return CleanupPlan{}, err
	}
	infos, err := m.inspectAll(ctx, ws, base)
	if err != nil {
		return CleanupPlan{}, err
	}

	plan := Partition(infos, opts.OlderThanDays, opts.IncludeUnmerged)
	m.reporter.CleanupPlan(plan, opts.DryRun)
	if len(plan.Candidates) == 0 || opts.DryRun {
		return plan, nil
	}

	if !opts.Force {
		ok, err := m.confirmer.Confirm(fmt.Sprintf("Remove %d worktree(s)?", len(plan.Candidates)))
		if err != nil {
			return plan, fmt.Errorf("confirming cleanup: %w", err)
		}
		if !ok {
			return plan, ErrCancelled
		}
	}

	for _, c := range plan.Candidates {
		force := !c.Safety.IsSafeToRemove()
		if err := m.vcs.RemoveWorktree(ctx, ws.repo, c.Path, force); err != nil {
			return plan, &RemovalError{Name: c.Name, Path: c.Path, Err: err}
		}
		m.pruneEmptyParents(c.Path, ws.container())
		m.reporter.Removed(c.Name)
	}
	return plan, nil
}
