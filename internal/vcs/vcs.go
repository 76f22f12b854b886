// Package vcs defines the version-control capabilities the worktree core
// depends on, and a git-backed implementation of them.
package vcs

import (
	"context"
	"errors"
)

// ErrNotARepository indicates a path and none of its ancestors hold
// recognizable git metadata.
var ErrNotARepository = errors.New("not a git repository")

// Repository identifies the anchor checkout of a repository.
type Repository struct {
	// Root is the working directory of the primary checkout.
	Root string
}

// WorktreeRecord is one entry of the backend's worktree bookkeeping.
type WorktreeRecord struct {
	Path     string
	Head     string
	Branch   string // empty when detached
	Bare     bool
	Detached bool
	Locked   bool
	Prunable bool // directory is gone; the backend would prune it
}

// Facade is the capability interface over the version-control backend.
// Worktree-scoped queries take the worktree path; repository-scoped
// operations take the Repository returned by DiscoverRepository.
type Facade interface {
	// DiscoverRepository resolves path, or the closest ancestor that is a
	// checkout, to the repository's primary checkout. Paths inside linked
	// worktrees resolve to the primary checkout too.
	// Returns ErrNotARepository when nothing is found.
	DiscoverRepository(ctx context.Context, path string) (Repository, error)

	LocalBranchExists(ctx context.Context, repo Repository, name string) (bool, error)
	// RemoteBranchExists reports whether origin/<name> is known locally.
	RemoteBranchExists(ctx context.Context, repo Repository, name string) (bool, error)
	FetchAll(ctx context.Context, repo Repository) error

	// AddWorktree adds a worktree at path. When attachExisting is true the
	// worktree checks out the existing branch; otherwise branch is created
	// starting from base.
	AddWorktree(ctx context.Context, repo Repository, path, branch, base string, attachExisting bool) error
	ListWorktrees(ctx context.Context, repo Repository) ([]WorktreeRecord, error)
	RemoveWorktree(ctx context.Context, repo Repository, path string, force bool) error
	// RepairWorktrees rewrites administrative links after the primary
	// checkout has moved.
	RepairWorktrees(ctx context.Context, repo Repository) error

	// CurrentBranch returns the checked-out branch, or "" when HEAD is detached.
	CurrentBranch(ctx context.Context, path string) (string, error)
	// LastCommitTimestamp returns the committer time of HEAD in epoch
	// seconds. ok is false when the worktree has no commits.
	LastCommitTimestamp(ctx context.Context, path string) (epoch int64, ok bool, err error)
	// WorkingTreeDirty reports untracked, modified, or staged entries.
	WorkingTreeDirty(ctx context.Context, path string) (bool, error)
	// CommitsAheadOf counts commits reachable from HEAD but not from base.
	CommitsAheadOf(ctx context.Context, path, base string) (int, error)
}
