// Package worktree enumerates a repository's worktrees and derives the facts
// used to decide whether one may be removed.
package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/leighmcculloch/orbit/internal/layout"
	"github.com/leighmcculloch/orbit/internal/vcs"
)

const secondsPerDay = 86400

// Reasons reported when a worktree is not safe to remove.
const (
	ReasonUncommittedChanges = "has uncommitted changes"
	ReasonUnmergedCommits    = "has unmerged commits"
)

// SafetyCheck records the two conditions that make removal lossy.
type SafetyCheck struct {
	HasUncommittedChanges bool `json:"has_uncommitted_changes" yaml:"has_uncommitted_changes"`
	HasUnmergedCommits    bool `json:"has_unmerged_commits" yaml:"has_unmerged_commits"`
}

// IsSafeToRemove reports whether neither condition holds.
func (s SafetyCheck) IsSafeToRemove() bool {
	return !s.HasUncommittedChanges && !s.HasUnmergedCommits
}

// BlockedReasons lists every condition that makes removal unsafe.
func (s SafetyCheck) BlockedReasons() []string {
	var reasons []string
	if s.HasUncommittedChanges {
		reasons = append(reasons, ReasonUncommittedChanges)
	}
	if s.HasUnmergedCommits {
		reasons = append(reasons, ReasonUnmergedCommits)
	}
	return reasons
}

// Info is a snapshot of one worktree, derived fresh on every query.
type Info struct {
	Path   string
	Name   string
	Branch string // empty when detached
	// IsAnchor is true for the anchor slot and for any worktree on the base
	// branch.
	IsAnchor bool
	// StalenessDays is the age of the last commit, nil when there are no
	// commits.
	StalenessDays *float64
	Safety        SafetyCheck
}

// Detached reports whether HEAD is not on a branch.
func (i Info) Detached() bool {
	return i.Branch == ""
}

// IsStale reports whether the last commit is at least threshold days old.
// Worktrees without commits are never stale.
func (i Info) IsStale(threshold float64) bool {
	return i.StalenessDays != nil && *i.StalenessDays >= threshold
}

// StalenessDays returns the fractional days between a commit at epoch and now.
func StalenessDays(now time.Time, epoch int64) float64 {
	days := float64(now.Unix()-epoch) / secondsPerDay
	if days < 0 {
		return 0
	}
	return days
}

// Registry enumerates worktrees. It holds no state between calls, since
// worktrees may be added or removed by others at any time.
type Registry struct {
	vcs    vcs.Facade
	logger *slog.Logger
}

// NewRegistry returns a Registry backed by facade.
func NewRegistry(facade vcs.Facade, logger *slog.Logger) *Registry {
	return &Registry{vcs: facade, logger: logger}
}

// List returns the paths of all registered worktrees, the anchor included,
// in the order the backend reports them. Entries whose directory is gone and
// bare entries are skipped because they cannot be inspected.
func (r *Registry) List(ctx context.Context, repo vcs.Repository) ([]string, error) {
	records, err := r.vcs.ListWorktrees(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}

	paths := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Bare || rec.Prunable {
			r.logger.Debug("skipping worktree", "path", rec.Path, "bare", rec.Bare, "prunable", rec.Prunable)
			continue
		}
		paths = append(paths, rec.Path)
	}
	return paths, nil
}

// Inspector derives Info for worktrees relative to one instant, so that
// staleness values computed in one command are comparable.
type Inspector struct {
	vcs    vcs.Facade
	anchor string
	now    time.Time
}

// NewInspector returns an Inspector measuring staleness at now. anchor is
// the primary checkout's path; it is classified as the anchor whatever its
// directory is called.
func NewInspector(facade vcs.Facade, anchor string, now time.Time) *Inspector {
	return &Inspector{vcs: facade, anchor: filepath.Clean(anchor), now: now}
}

func (in *Inspector) isAnchorSlot(path string) bool {
	path = filepath.Clean(path)
	return filepath.Base(path) == layout.AnchorDir || (in.anchor != "." && path == in.anchor)
}

// Inspect computes the Info of the worktree at path against base, a local
// branch or a remote-tracking ref such as origin/main. Any backend failure
// is returned; nothing defaults to safe.
func (in *Inspector) Inspect(ctx context.Context, path, base string) (Info, error) {
	info := Info{Path: path, Name: filepath.Base(path)}

	branch, err := in.vcs.CurrentBranch(ctx, path)
	if err != nil {
		return Info{}, fmt.Errorf("inspecting %s: current branch: %w", path, err)
	}
	info.Branch = branch
	info.IsAnchor = in.isAnchorSlot(path) || (branch != "" && branch == strings.TrimPrefix(base, vcs.DefaultRemote+"/"))

	epoch, ok, err := in.vcs.LastCommitTimestamp(ctx, path)
	if err != nil {
		return Info{}, fmt.Errorf("inspecting %s: last commit: %w", path, err)
	}
	if ok {
		days := StalenessDays(in.now, epoch)
		info.StalenessDays = &days
	}

	dirty, err := in.vcs.WorkingTreeDirty(ctx, path)
	if err != nil {
		return Info{}, fmt.Errorf("inspecting %s: status: %w", path, err)
	}
	ahead, err := in.vcs.CommitsAheadOf(ctx, path, base)
	if err != nil {
		return Info{}, fmt.Errorf("inspecting %s: commits not in %s: %w", path, base, err)
	}
	info.Safety = SafetyCheck{
		HasUncommittedChanges: dirty,
		HasUnmergedCommits:    ahead > 0,
	}

	return info, nil
}
