package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"4d63.com/testcli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func setupGit(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	testcli.Exec(t, "git config --global user.email 'tests@example.com'")
	testcli.Exec(t, "git config --global user.name 'Tests'")
	testcli.Exec(t, "git config --global init.defaultBranch main")
}

func gitExec(t *testing.T, command string) string {
	_, stdout, _ := testcli.Exec(t, command)
	return strings.TrimSpace(stdout)
}

// commitDate formats a time as a git date.
func commitDate(age time.Duration) string {
	return fmt.Sprintf("%d +0000", time.Now().Add(-age).Unix())
}

// initRepo creates a repository named repo with one commit made age ago,
// changes into it, and returns its real path.
func initRepo(t *testing.T, age time.Duration) string {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	testcli.Mkdir(t, "repo")
	testcli.Chdir(t, "repo")
	testcli.Exec(t, "git init")
	testcli.WriteFile(t, "file1", []byte("content"))
	testcli.Exec(t, "git add .")
	date := commitDate(age)
	testcli.Exec(t, fmt.Sprintf("env GIT_AUTHOR_DATE='%s' GIT_COMMITTER_DATE='%s' git commit -m 'Initial commit'", date, date))
	root, err := filepath.EvalSymlinks(filepath.Join(dir, "repo"))
	require.NoError(t, err)
	return root
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNoArgsPrintsHelp(t *testing.T) {
	setupGit(t)

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Contains(t, stdout, "worktree")
	assert.Contains(t, stdout, "init")
}

func TestNotARepository(t *testing.T) {
	setupGit(t)
	testcli.Chdir(t, testcli.MkdirTemp(t))

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "ls"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "Error: not a git repository")
}

func TestCreateConvertsLayout(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	args := []string{"orbit", "worktree", "create", "feature-x"}
	exitCode, stdout, stderr := testcli.Main(t, args, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)

	path := filepath.Join(root, "satellites", "feature-x")
	assert.Equal(t, fmt.Sprintf(`→ Fetching from remote
→ Converting to worktree layout
✓ Created worktree %s on new branch feature-x
`, path), stdout)

	assert.True(t, exists(filepath.Join(root, "anchor", ".git")))
	assert.True(t, exists(filepath.Join(root, "anchor", "file1")))
	assert.False(t, exists(filepath.Join(root, ".git")))
	assert.Equal(t, "feature-x", gitExec(t, "git -C "+path+" branch --show-current"))
	assert.Equal(t,
		gitExec(t, "git -C "+filepath.Join(root, "anchor")+" rev-parse main"),
		gitExec(t, "git -C "+path+" rev-parse HEAD"))
}

func TestCreateResumesInterruptedConversion(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	// Stop a conversion after the checkout was placed in anchor/.
	staging := filepath.Join(filepath.Dir(root), ".repo.orbit-staging-test")
	require.NoError(t, os.Rename(root, staging))
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Rename(staging, filepath.Join(root, "anchor")))
	testcli.Chdir(t, filepath.Join(root, "anchor"))

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "feat"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Contains(t, stdout, "Converting to worktree layout")

	assert.True(t, exists(filepath.Join(root, "anchor", ".git")))
	assert.False(t, exists(filepath.Join(root, "anchor", "anchor")))
	assert.True(t, exists(filepath.Join(root, "satellites", "feat")))
	assert.True(t, exists(filepath.Join(root, ".orbit")))
}

func TestCreateWithoutBaseLeavesCheckoutAlone(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	testcli.Exec(t, "git branch -m trunk")

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "feat"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "Error: no base branch")

	assert.True(t, exists(filepath.Join(root, ".git")))
	assert.False(t, exists(filepath.Join(root, "anchor")))
	assert.False(t, exists(filepath.Join(root, "satellites")))
}

func TestCreateExistingBranch(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	testcli.Exec(t, "git branch existing")

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "existing"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Contains(t, stdout, "on existing branch existing")

	testcli.Chdir(t, root)
	exitCode, _, stderr = testcli.Main(t, []string{"orbit", "wt", "create", "existing"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "already exists")
}

func TestCreateRunsHooks(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	exitCode, _, _ := testcli.Main(t, []string{"orbit", "init"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, root)
	testcli.WriteFile(t, ".orbit/config.toml", []byte(`[hooks]
post_create = ["echo provisioned > hook.txt"]
`))

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "hooked"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	content, err := os.ReadFile(filepath.Join(root, "satellites", "hooked", "hook.txt"))
	require.NoError(t, err)
	assert.Equal(t, "provisioned\n", string(content))
}

func TestCreateHookFailureKeepsWorktree(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	exitCode, _, _ := testcli.Main(t, []string{"orbit", "init"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, root)
	testcli.WriteFile(t, ".orbit/config.toml", []byte(`[hooks]
post_create = ["echo missing dependency >&2; exit 3"]
`))

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "broken"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "exit code 3")
	assert.Contains(t, stderr, "missing dependency")
	assert.True(t, exists(filepath.Join(root, "satellites", "broken")))
}

func TestCreateUnknownEditor(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "create", "x", "--open", "notepad"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, `unknown editor "notepad"`)
	assert.False(t, exists(filepath.Join(root, "anchor")), "rejected before converting")
}

func TestInitAndStatus(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)

	exitCode, stdout, _ := testcli.Main(t, []string{"orbit", "status"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout, "Layout:    standard")

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "init"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, fmt.Sprintf(`→ Converting to worktree layout
✓ Converted %s to the worktree layout
✓ Wrote %s
`, root, filepath.Join(root, ".orbit", "config.toml")), stdout)

	testcli.Chdir(t, root)
	exitCode, stdout, _ = testcli.Main(t, []string{"orbit", "status"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout, "Layout:    worktree (anchor/ + satellites/)")
	assert.Contains(t, stdout, "Anchor:    "+filepath.Join(root, "anchor"))
	assert.Contains(t, stdout, "Base:      main")
	assert.Contains(t, stdout, "Worktrees: 1")
}

func TestInitRepairsExistingWorktrees(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	side := filepath.Join(filepath.Dir(root), "side")
	testcli.Exec(t, "git worktree add -b side "+side)

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "init"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)

	assert.Equal(t, "side", gitExec(t, "git -C "+side+" branch --show-current"))
	assert.Contains(t, gitExec(t, "git -C "+filepath.Join(root, "anchor")+" worktree list"), side)
}

func TestListFormats(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "feature-x"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, root)

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "ls"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, `Worktrees (base: main)
  anchor     main       (anchor)
  feature-x  feature-x  (0 days)
`, stdout)

	exitCode, stdout, _ = testcli.Main(t, []string{"orbit", "wt", "ls", "--format", "json"}, nil, run)
	assert.Equal(t, 0, exitCode)
	var listing Listing
	require.NoError(t, json.Unmarshal([]byte(stdout), &listing))
	assert.Equal(t, "main", listing.BaseBranch)
	require.Len(t, listing.Worktrees, 2)
	assert.Equal(t, "anchor", listing.Worktrees[0].Name)
	assert.True(t, listing.Worktrees[0].IsAnchor)
	assert.Equal(t, Worktree{
		Name:          "feature-x",
		Path:          filepath.Join(root, "satellites", "feature-x"),
		Branch:        "feature-x",
		StalenessDays: listing.Worktrees[1].StalenessDays,
		SafeToRemove:  true,
	}, listing.Worktrees[1])
	require.NotNil(t, listing.Worktrees[1].StalenessDays)

	exitCode, stdout, _ = testcli.Main(t, []string{"orbit", "wt", "ls", "-o", "yaml"}, nil, run)
	assert.Equal(t, 0, exitCode)
	var fromYAML Listing
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &fromYAML))
	assert.Equal(t, listing, fromYAML)

	exitCode, _, stderr = testcli.Main(t, []string{"orbit", "wt", "ls", "--format", "xml"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, `unknown format "xml"`)
}

func TestListStale(t *testing.T) {
	setupGit(t)
	root := initRepo(t, 40*24*time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "old"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, filepath.Join(root, "satellites", "old"))
	testcli.WriteFile(t, "scratch", []byte("wip"))

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "ls", "--stale", "30"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, `Stale worktrees:
  anchor  main  (40 days)  (anchor)
  old     old   (40 days)  has uncommitted changes
`, stdout)
}

func TestRemove(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "wip"}, nil, run)
	require.Equal(t, 0, exitCode)
	path := filepath.Join(root, "satellites", "wip")
	testcli.Chdir(t, path)
	testcli.WriteFile(t, "new.txt", []byte("uncommitted"))
	testcli.Chdir(t, root)

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "rm", "wip"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "Error: cannot remove wip: has uncommitted changes (use --force to remove anyway)\n", stderr)
	assert.True(t, exists(path))

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "rm", "wip", "--force"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, "✓ Removed wip\n", stdout)
	assert.False(t, exists(path))

	exitCode, _, stderr = testcli.Main(t, []string{"orbit", "wt", "rm", "wip"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "not found")
}

func TestRemoveUnmergedCommits(t *testing.T) {
	setupGit(t)
	root := initRepo(t, time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "ahead"}, nil, run)
	require.Equal(t, 0, exitCode)
	path := filepath.Join(root, "satellites", "ahead")
	testcli.Chdir(t, path)
	testcli.WriteFile(t, "feature.txt", []byte("done"))
	testcli.Exec(t, "git add .")
	testcli.Exec(t, "git commit -m 'Add feature'")
	testcli.WriteFile(t, "more.txt", []byte("wip"))
	testcli.Chdir(t, root)

	exitCode, _, stderr := testcli.Main(t, []string{"orbit", "wt", "rm", "ahead"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "has uncommitted changes, has unmerged commits")
	assert.True(t, exists(path))
}

func TestCleanup(t *testing.T) {
	setupGit(t)
	root := initRepo(t, 40*24*time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "old"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, root)
	path := filepath.Join(root, "satellites", "old")

	exitCode, stdout, stderr := testcli.Main(t, []string{"orbit", "wt", "cleanup", "--older-than", "30", "--dry-run"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, `Would remove 1 worktree(s) older than 30 days:
  old (40 days)
Dry run, nothing removed.
`, stdout)
	assert.True(t, exists(path))

	exitCode, stdout, _ = testcli.Main(t, []string{"orbit", "wt", "cleanup", "--older-than", "30"}, strings.NewReader("n\n"), run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdout, "Remove 1 worktree(s)? [y/N]")
	assert.Contains(t, stdout, "Cancelled, nothing removed.")
	assert.True(t, exists(path))

	exitCode, stdout, stderr = testcli.Main(t, []string{"orbit", "wt", "cleanup", "--older-than", "14", "--force"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Contains(t, stdout, "✓ Removed old")
	assert.False(t, exists(path))
}

func TestCleanupUsesConfiguredThreshold(t *testing.T) {
	setupGit(t)
	root := initRepo(t, 10*24*time.Hour)
	exitCode, _, _ := testcli.Main(t, []string{"orbit", "wt", "create", "recent"}, nil, run)
	require.Equal(t, 0, exitCode)
	testcli.Chdir(t, root)

	exitCode, stdout, _ := testcli.Main(t, []string{"orbit", "wt", "cleanup", "--dry-run"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "No worktrees older than 14 days.\n", stdout)

	configFile := filepath.Join(testcli.MkdirTemp(t), "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("stale_days = 7\n"), 0o644))
	exitCode, stdout, _ = testcli.Main(t, []string{"orbit", "--config", configFile, "wt", "cleanup", "--dry-run"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout, "Would remove 1 worktree(s) older than 7 days:")
}
