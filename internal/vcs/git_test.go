package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"4d63.com/testcli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGit(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	os.Setenv("HOME", dir)
	testcli.Exec(t, "git config --global user.email 'tests@example.com'")
	testcli.Exec(t, "git config --global user.name 'Tests'")
	testcli.Exec(t, "git config --global init.defaultBranch main")
}

func gitExec(t *testing.T, command string) string {
	_, stdout, _ := testcli.Exec(t, command)
	return strings.TrimSpace(stdout)
}

// initRepo creates a repository with one commit and returns its real path.
func initRepo(t *testing.T) string {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	testcli.Exec(t, "git init")
	testcli.WriteFile(t, "file1", []byte("content"))
	testcli.Exec(t, "git add .")
	testcli.Exec(t, "git commit -m 'Initial commit'")
	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return real
}

func TestParseWorktreeList(t *testing.T) {
	output := `worktree /r/anchor
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /r/satellites/feature
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/auth
locked

worktree /r/satellites/detached
HEAD 3333333333333333333333333333333333333333
detached

worktree /r/satellites/gone
HEAD 4444444444444444444444444444444444444444
branch refs/heads/gone
prunable gitdir file points to non-existent location`

	records := parseWorktreeList(output)
	require.Len(t, records, 4)

	assert.Equal(t, WorktreeRecord{
		Path:   "/r/anchor",
		Head:   "1111111111111111111111111111111111111111",
		Branch: "main",
	}, records[0])
	assert.Equal(t, "feature/auth", records[1].Branch)
	assert.True(t, records[1].Locked)
	assert.True(t, records[2].Detached)
	assert.Equal(t, "", records[2].Branch)
	assert.True(t, records[3].Prunable)
}

func TestParseWorktreeListEmpty(t *testing.T) {
	assert.Empty(t, parseWorktreeList(""))
}

func TestDiscoverRepositoryFromSubdirectory(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	testcli.Mkdir(t, "sub")

	repo, err := NewGit().DiscoverRepository(context.Background(), filepath.Join(root, "sub"))
	require.NoError(t, err)
	assert.Equal(t, root, repo.Root)
}

func TestDiscoverRepositoryFromLinkedWorktree(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	linked := root + "-linked"
	testcli.Exec(t, "git worktree add -b feature "+linked)

	repo, err := NewGit().DiscoverRepository(context.Background(), linked)
	require.NoError(t, err)
	assert.Equal(t, root, repo.Root)
}

func TestDiscoverRepositoryNotARepository(t *testing.T) {
	setupGit(t)
	dir := testcli.MkdirTemp(t)

	_, err := NewGit().DiscoverRepository(context.Background(), dir)
	require.ErrorIs(t, err, ErrNotARepository)
}

func TestBranchExists(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	testcli.Exec(t, "git branch feature")
	g := NewGit()
	ctx := context.Background()
	repo := Repository{Root: root}

	ok, err := g.LocalBranchExists(ctx, repo, "feature")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.LocalBranchExists(ctx, repo, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.RemoteBranchExists(ctx, repo, "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteBranchExists(t *testing.T) {
	setupGit(t)

	remote := testcli.MkdirTemp(t)
	testcli.Chdir(t, remote)
	testcli.Exec(t, "git init --bare")

	root := initRepo(t)
	testcli.Exec(t, "git remote add origin "+remote)
	testcli.Exec(t, "git push -u origin main")

	ok, err := NewGit().RemoteBranchExists(context.Background(), Repository{Root: root}, "main")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddListRemoveWorktree(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	testcli.Exec(t, "git branch existing")
	g := NewGit()
	ctx := context.Background()
	repo := Repository{Root: root}

	created := root + "-created"
	attached := root + "-attached"
	require.NoError(t, g.AddWorktree(ctx, repo, created, "created", "main", false))
	require.NoError(t, g.AddWorktree(ctx, repo, attached, "existing", "", true))

	records, err := g.ListWorktrees(ctx, repo)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, root, records[0].Path)
	assert.Equal(t, "main", records[0].Branch)

	branch, err := g.CurrentBranch(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "created", branch)

	branch, err = g.CurrentBranch(ctx, attached)
	require.NoError(t, err)
	assert.Equal(t, "existing", branch)

	require.NoError(t, g.RemoveWorktree(ctx, repo, created, false))
	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveWorktreeDirtyNeedsForce(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	g := NewGit()
	ctx := context.Background()
	repo := Repository{Root: root}

	wip := root + "-wip"
	require.NoError(t, g.AddWorktree(ctx, repo, wip, "wip", "main", false))
	require.NoError(t, os.WriteFile(filepath.Join(wip, "scratch"), []byte("x"), 0o644))

	err := g.RemoveWorktree(ctx, repo, wip, false)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.NotEmpty(t, cmdErr.Stderr)

	require.NoError(t, g.RemoveWorktree(ctx, repo, wip, true))
}

func TestInspectionQueries(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	g := NewGit()
	ctx := context.Background()

	epoch, ok, err := g.LastCommitTimestamp(ctx, root)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, time.Now().Unix(), epoch, 300)

	dirty, err := g.WorkingTreeDirty(ctx, root)
	require.NoError(t, err)
	assert.False(t, dirty)

	testcli.WriteFile(t, "untracked", []byte("new"))
	dirty, err = g.WorkingTreeDirty(ctx, root)
	require.NoError(t, err)
	assert.True(t, dirty)

	testcli.Exec(t, "git checkout -b topic")
	testcli.Exec(t, "git add .")
	testcli.Exec(t, "git commit -m 'Topic commit'")
	ahead, err := g.CommitsAheadOf(ctx, root, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, ahead)

	testcli.Exec(t, "git checkout --detach HEAD")
	branch, err := g.CurrentBranch(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, "", branch)
}

func TestInspectionQueriesWithoutCommits(t *testing.T) {
	setupGit(t)
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	testcli.Exec(t, "git init")
	g := NewGit()
	ctx := context.Background()

	_, ok, err := g.LastCommitTimestamp(ctx, dir)
	require.NoError(t, err)
	assert.False(t, ok)

	ahead, err := g.CommitsAheadOf(ctx, dir, "main")
	require.NoError(t, err)
	assert.Equal(t, 0, ahead)

	branch, err := g.CurrentBranch(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCommitsAheadOfUnknownBaseFails(t *testing.T) {
	setupGit(t)
	root := initRepo(t)

	_, err := NewGit().CommitsAheadOf(context.Background(), root, "does-not-exist")
	require.Error(t, err)
}

func TestRepairWorktreesAfterMove(t *testing.T) {
	setupGit(t)
	root := initRepo(t)
	linked := root + "-linked"
	testcli.Exec(t, "git worktree add -b linked "+linked)
	head := gitExec(t, "git rev-parse HEAD")

	moved := root + "-moved"
	require.NoError(t, os.Rename(root, moved))
	testcli.Chdir(t, moved)

	g := NewGit()
	require.NoError(t, g.RepairWorktrees(context.Background(), Repository{Root: moved}))

	repo, err := g.DiscoverRepository(context.Background(), linked)
	require.NoError(t, err)
	assert.Equal(t, moved, repo.Root)
	testcli.Chdir(t, linked)
	assert.Equal(t, head, gitExec(t, "git rev-parse HEAD"))
}
