// Package editor launches a known editor on a worktree directory.
package editor

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotInstalled indicates the editor's executable is not on PATH.
var ErrNotInstalled = errors.New("editor not installed")

// Kind is one of the supported editors.
type Kind int

const (
	Cursor Kind = iota + 1
	Windsurf
	Idea
	Code
	Claude
)

var kinds = []Kind{Cursor, Windsurf, Idea, Code, Claude}

// Kinds returns every supported editor in display order.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// Names returns the names accepted by ParseKind.
func Names() []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// ParseKind returns the Kind called name, ignoring case.
func ParseKind(name string) (Kind, error) {
	for _, k := range kinds {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown editor %q, expected one of: %s", name, strings.Join(Names(), ", "))
}

func (k Kind) String() string {
	switch k {
	case Cursor:
		return "cursor"
	case Windsurf:
		return "windsurf"
	case Idea:
		return "idea"
	case Code:
		return "code"
	case Claude:
		return "claude"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command returns the executable name for k.
func (k Kind) Command() string {
	return k.String()
}

// Launcher starts an editor on a directory.
type Launcher interface {
	Launch(k Kind, dir string) error
}

// Exec launches editors as detached child processes found on PATH.
type Exec struct {
	lookPath func(string) (string, error)
	start    func(cmd *exec.Cmd) error
}

// NewExec returns a Launcher that runs editors from PATH.
func NewExec() *Exec {
	return &Exec{
		lookPath: exec.LookPath,
		start:    func(cmd *exec.Cmd) error { return cmd.Start() },
	}
}

// Available reports whether k's executable is on PATH.
func (e *Exec) Available(k Kind) bool {
	_, err := e.lookPath(k.Command())
	return err == nil
}

// Detect returns the installed editors in display order.
func (e *Exec) Detect() []Kind {
	var found []Kind
	for _, k := range kinds {
		if e.Available(k) {
			found = append(found, k)
		}
	}
	return found
}

// Launch starts k on dir and returns without waiting for it to exit.
func (e *Exec) Launch(k Kind, dir string) error {
	bin, err := e.lookPath(k.Command())
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, k)
	}
	cmd := exec.Command(bin, dir)
	if err := e.start(cmd); err != nil {
		return fmt.Errorf("starting %s: %w", k, err)
	}
	if cmd.Process != nil {
		// The editor outlives this process.
		_ = cmd.Process.Release()
	}
	return nil
}
