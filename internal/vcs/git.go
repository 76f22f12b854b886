package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultRemote is the remote consulted for remote branches and fetches.
const DefaultRemote = "origin"

// CommandError is returned when a git subprocess exits unsuccessfully.
// It keeps git's stderr so the cause reaches the user verbatim.
type CommandError struct {
	Dir    string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s (in %s): %v", strings.Join(e.Args, " "), e.Dir, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying process error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the git exit status, or -1 if git did not run.
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Git implements Facade with the git command line for worktree, status and
// log queries, and go-git for reference lookups.
type Git struct {
	// Binary is the git executable; "git" when empty.
	Binary string
}

var _ Facade = (*Git)(nil)

// NewGit returns a Git facade using the git binary found on PATH.
func NewGit() *Git {
	return &Git{Binary: "git"}
}

// git runs a git command in the specified directory and returns stdout
func (g *Git) git(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{
			Dir:    dir,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return strings.TrimSpace(string(out)), nil
}

// DiscoverRepository implements Facade.
func (g *Git) DiscoverRepository(ctx context.Context, path string) (Repository, error) {
	out, err := g.git(ctx, path, "rev-parse", "--path-format=absolute", "--git-common-dir", "--is-bare-repository")
	if err != nil {
		return Repository{}, fmt.Errorf("%w: %s", ErrNotARepository, path)
	}

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		return Repository{}, fmt.Errorf("unexpected git rev-parse output %q", out)
	}
	commonDir, bare := strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
	if bare == "true" {
		return Repository{}, fmt.Errorf("%s: bare repositories are not supported", commonDir)
	}
	if filepath.Base(commonDir) != git.GitDirName {
		return Repository{}, fmt.Errorf("%s: repositories with a separate git directory are not supported", commonDir)
	}

	root := filepath.Dir(commonDir)
	if _, err := git.PlainOpen(root); err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Repository{}, fmt.Errorf("%w: %s", ErrNotARepository, root)
		}
		return Repository{}, fmt.Errorf("opening repository %s: %w", root, err)
	}
	return Repository{Root: root}, nil
}

// LocalBranchExists implements Facade.
func (g *Git) LocalBranchExists(ctx context.Context, repo Repository, name string) (bool, error) {
	return g.referenceExists(repo, plumbing.NewBranchReferenceName(name))
}

// RemoteBranchExists implements Facade.
func (g *Git) RemoteBranchExists(ctx context.Context, repo Repository, name string) (bool, error) {
	return g.referenceExists(repo, plumbing.NewRemoteReferenceName(DefaultRemote, name))
}

func (g *Git) referenceExists(repo Repository, name plumbing.ReferenceName) (bool, error) {
	r, err := git.PlainOpen(repo.Root)
	if err != nil {
		return false, fmt.Errorf("opening repository %s: %w", repo.Root, err)
	}
	if _, err := r.Reference(name, false); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("looking up %s: %w", name, err)
	}
	return true, nil
}

// FetchAll implements Facade.
func (g *Git) FetchAll(ctx context.Context, repo Repository) error {
	_, err := g.git(ctx, repo.Root, "fetch", "--all", "--quiet")
	return err
}

// AddWorktree implements Facade.
func (g *Git) AddWorktree(ctx context.Context, repo Repository, path, branch, base string, attachExisting bool) error {
	args := []string{"worktree", "add", path, branch}
	if !attachExisting {
		args = []string{"worktree", "add", "-b", branch, path}
		if base != "" {
			args = append(args, base)
		}
	}
	_, err := g.git(ctx, repo.Root, args...)
	return err
}

// ListWorktrees implements Facade.
func (g *Git) ListWorktrees(ctx context.Context, repo Repository) ([]WorktreeRecord, error) {
	output, err := g.git(ctx, repo.Root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(output), nil
}

// parseWorktreeList parses `git worktree list --porcelain` output.
// Entries are separated by empty lines; the first entry is the main checkout.
func parseWorktreeList(output string) []WorktreeRecord {
	var records []WorktreeRecord
	var current *WorktreeRecord

	flush := func() {
		if current != nil {
			records = append(records, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &WorktreeRecord{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			// Attribute without a worktree line; ignore.
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		case line == "locked" || strings.HasPrefix(line, "locked "):
			current.Locked = true
		case line == "prunable" || strings.HasPrefix(line, "prunable "):
			current.Prunable = true
		}
	}
	// Handle case where output doesn't end with empty line
	flush()

	return records
}

// RemoveWorktree implements Facade.
func (g *Git) RemoveWorktree(ctx context.Context, repo Repository, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.git(ctx, repo.Root, args...)
	return err
}

// RepairWorktrees implements Facade.
func (g *Git) RepairWorktrees(ctx context.Context, repo Repository) error {
	_, err := g.git(ctx, repo.Root, "worktree", "repair")
	return err
}

// CurrentBranch implements Facade.
func (g *Git) CurrentBranch(ctx context.Context, path string) (string, error) {
	return g.git(ctx, path, "branch", "--show-current")
}

// hasCommits reports whether HEAD resolves to a commit.
func (g *Git) hasCommits(ctx context.Context, path string) (bool, error) {
	_, err := g.git(ctx, path, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err == nil {
		return true, nil
	}
	// --verify --quiet exits 1 without output for an unborn HEAD.
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode() == 1 && cmdErr.Stderr == "" {
		return false, nil
	}
	return false, err
}

// LastCommitTimestamp implements Facade.
func (g *Git) LastCommitTimestamp(ctx context.Context, path string) (int64, bool, error) {
	ok, err := g.hasCommits(ctx, path)
	if err != nil || !ok {
		return 0, false, err
	}
	out, err := g.git(ctx, path, "log", "-1", "--format=%ct", "HEAD")
	if err != nil {
		return 0, false, err
	}
	epoch, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing commit timestamp %q: %w", out, err)
	}
	return epoch, true, nil
}

// WorkingTreeDirty implements Facade.
func (g *Git) WorkingTreeDirty(ctx context.Context, path string) (bool, error) {
	status, err := g.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// CommitsAheadOf implements Facade.
func (g *Git) CommitsAheadOf(ctx context.Context, path, base string) (int, error) {
	ok, err := g.hasCommits(ctx, path)
	if err != nil || !ok {
		return 0, err
	}
	out, err := g.git(ctx, path, "rev-list", "--count", base+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing commit count %q: %w", out, err)
	}
	return n, nil
}
