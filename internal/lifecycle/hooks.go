package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// HookRunner runs one post-create command inside a worktree.
type HookRunner interface {
	Run(ctx context.Context, dir, command string) error
}

// ShellHookRunner runs hooks with sh -c. Stdout is streamed to Stdout; stderr
// is captured for the returned *HookError.
type ShellHookRunner struct {
	Stdout io.Writer
}

// Run implements HookRunner.
func (r ShellHookRunner) Run(ctx context.Context, dir, command string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &HookError{
			Command:  command,
			Dir:      dir,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return nil
}
