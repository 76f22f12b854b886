package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyExists indicates the worktree path or its branch is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound indicates no worktree exists under the given name.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName indicates a worktree name that cannot be placed safely.
	ErrInvalidName = errors.New("invalid worktree name")

	// ErrNoBaseBranch indicates no base branch was given and none of the
	// conventional ones exist.
	ErrNoBaseBranch = errors.New("no base branch")

	// ErrBlockedRemoval indicates an unsafe removal attempted without force.
	ErrBlockedRemoval = errors.New("removal blocked")

	// ErrCancelled indicates the user declined a confirmation. Nothing was
	// changed.
	ErrCancelled = errors.New("cancelled")
)

// BlockedRemovalError lists every reason a worktree was not removed.
type BlockedRemovalError struct {
	Name    string
	Reasons []string
}

func (e *BlockedRemovalError) Error() string {
	return fmt.Sprintf("cannot remove %s: %s (use --force to remove anyway)", e.Name, strings.Join(e.Reasons, ", "))
}

func (e *BlockedRemovalError) Unwrap() error {
	return ErrBlockedRemoval
}

// HookError reports a post-create command that exited non-zero. The
// worktree it ran in is left in place.
type HookError struct {
	Command  string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *HookError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "post-create hook %q failed", e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	fmt.Fprintf(&b, "; worktree left at %s", e.Dir)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString("\n")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// RemovalError reports the worktree a cleanup pass stopped at. Worktrees
// removed earlier in the pass stay removed.
type RemovalError struct {
	Name string
	Path string
	Err  error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("removing %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *RemovalError) Unwrap() error {
	return e.Err
}
