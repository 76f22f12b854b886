// Package layout manages the dual-root directory layout: an anchor checkout
// and a satellites directory holding linked worktrees, side by side under one
// layout root.
//
// Converting a flat checkout is a crash-sensitive sequence of renames, so it
// is expressed as a protocol of named states. Each call to Step performs one
// transition, and Convert resumes from whatever state it finds on disk.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// AnchorDir holds the primary checkout.
	AnchorDir = "anchor"
	// SatellitesDir holds one directory per linked worktree.
	SatellitesDir = "satellites"
	// MarkerDir marks a layout root as managed and holds project settings.
	MarkerDir = ".orbit"

	stagingInfix = ".orbit-staging-"
)

var (
	// ErrAmbiguousLayout indicates conflicting directories that must be
	// resolved by hand; conversion never guesses.
	ErrAmbiguousLayout = errors.New("ambiguous layout")

	// ErrNotCheckout indicates the root is neither a checkout nor a layout in
	// any recognizable stage of conversion.
	ErrNotCheckout = errors.New("not a checkout")
)

// State is a stage of the conversion protocol.
type State int

const (
	// StateOriginal is a flat checkout: <root>/.git exists.
	StateOriginal State = iota
	// StateStaged is a checkout moved to a staging sibling; <root> is gone.
	StateStaged
	// StateReserved is an empty <root> recreated next to the staging sibling.
	StateReserved
	// StatePlaced is the checkout moved into <root>/anchor.
	StatePlaced
	// StateConverted is the finished layout.
	StateConverted
)

func (s State) String() string {
	switch s {
	case StateOriginal:
		return "original"
	case StateStaged:
		return "staged"
	case StateReserved:
		return "reserved"
	case StatePlaced:
		return "placed"
	case StateConverted:
		return "converted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager inspects and converts layout roots.
type Manager struct {
	fs    afero.Fs
	newID func() string
}

// NewManager returns a Manager operating on fs.
func NewManager(fs afero.Fs) *Manager {
	return &Manager{
		fs:    fs,
		newID: func() string { return uuid.NewString() },
	}
}

// AnchorPath returns the anchor checkout location under root.
func AnchorPath(root string) string {
	return filepath.Join(root, AnchorDir)
}

// SatellitesPath returns the satellites container under root.
func SatellitesPath(root string) string {
	return filepath.Join(root, SatellitesDir)
}

// MarkerPath returns the marker directory under root.
func MarkerPath(root string) string {
	return filepath.Join(root, MarkerDir)
}

// SatellitePath returns where the worktree called name lives: inside the
// satellites directory when root is converted, else directly under root.
func SatellitePath(root string, converted bool, name string) string {
	if converted {
		return filepath.Join(SatellitesPath(root), name)
	}
	return filepath.Join(root, name)
}

// IsConverted reports whether both the anchor and satellites directories
// exist under root.
func (m *Manager) IsConverted(root string) bool {
	anchor, _ := afero.DirExists(m.fs, AnchorPath(root))
	satellites, _ := afero.DirExists(m.fs, SatellitesPath(root))
	return anchor && satellites
}

func (m *Manager) isCheckout(dir string) bool {
	ok, _ := afero.Exists(m.fs, filepath.Join(dir, ".git"))
	return ok
}

// Discover walks parent directories of start looking for a layout root
// whose anchor is a checkout. A root still missing its satellites directory
// is only found from inside its anchor.
func (m *Manager) Discover(start string) (string, bool) {
	start = filepath.Clean(start)
	current := start
	for {
		anchor := AnchorPath(current)
		if m.isCheckout(anchor) && (m.IsConverted(current) || within(start, anchor)) {
			return current, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached root
			return "", false
		}
		current = parent
	}
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// stagingRoot returns the root a staging directory was moved away from.
func stagingRoot(dir string) (string, bool) {
	base := filepath.Base(dir)
	i := strings.LastIndex(base, stagingInfix)
	if !strings.HasPrefix(base, ".") || i < 2 {
		return "", false
	}
	return filepath.Join(filepath.Dir(dir), base[1:i]), true
}

// Interruption is a conversion that stopped between StateOriginal and
// StateConverted.
type Interruption struct {
	Root  string
	State State
	// Checkout is where the repository's working directory is now.
	Checkout string
}

// FindInterrupted looks for an unfinished conversion that dir belongs to:
// dir is the root, or the root's anchor, or the staging directory the
// checkout was moved to. Ambiguous layouts are returned as errors.
func (m *Manager) FindInterrupted(dir string) (Interruption, bool, error) {
	dir = filepath.Clean(dir)
	candidates := []string{dir, filepath.Dir(dir)}
	if root, ok := stagingRoot(dir); ok {
		candidates = append([]string{root}, candidates...)
	}

	for _, root := range candidates {
		state, err := m.Detect(root)
		if errors.Is(err, ErrAmbiguousLayout) {
			return Interruption{}, false, err
		}
		if err != nil {
			continue
		}
		switch state {
		case StateStaged, StateReserved:
			staging, err := m.stagingPaths(root)
			if err != nil {
				return Interruption{}, false, err
			}
			return Interruption{Root: root, State: state, Checkout: staging[0]}, true, nil
		case StatePlaced:
			return Interruption{Root: root, State: state, Checkout: AnchorPath(root)}, true, nil
		}
	}
	return Interruption{}, false, nil
}

// stagingPaths returns sibling directories left by an earlier Step from
// StateOriginal.
func (m *Manager) stagingPaths(root string) ([]string, error) {
	parent, name := filepath.Split(filepath.Clean(root))
	entries, err := afero.ReadDir(m.fs, parent)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", parent, err)
	}
	prefix := "." + name + stagingInfix
	var paths []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			paths = append(paths, filepath.Join(parent, e.Name()))
		}
	}
	return paths, nil
}

// Detect classifies root into a conversion state.
func (m *Manager) Detect(root string) (State, error) {
	if m.IsConverted(root) {
		return StateConverted, nil
	}

	staging, err := m.stagingPaths(root)
	if err != nil {
		return 0, err
	}
	if len(staging) > 1 {
		return 0, fmt.Errorf("%w: multiple staging directories for %s: %s", ErrAmbiguousLayout, root, strings.Join(staging, ", "))
	}

	rootExists, _ := afero.DirExists(m.fs, root)
	anchorExists, _ := afero.DirExists(m.fs, AnchorPath(root))

	switch {
	case rootExists && m.isCheckout(root):
		if anchorExists {
			return 0, fmt.Errorf("%w: %s is a checkout and already has an %s/ directory; refusing to guess", ErrAmbiguousLayout, root, AnchorDir)
		}
		if len(staging) == 1 {
			return 0, fmt.Errorf("%w: %s is a checkout and a staging directory %s exists", ErrAmbiguousLayout, root, staging[0])
		}
		return StateOriginal, nil
	case len(staging) == 1 && !rootExists:
		return StateStaged, nil
	case len(staging) == 1 && anchorExists:
		return 0, fmt.Errorf("%w: both %s and staging directory %s exist", ErrAmbiguousLayout, AnchorPath(root), staging[0])
	case len(staging) == 1:
		return StateReserved, nil
	case anchorExists && m.isCheckout(AnchorPath(root)):
		return StatePlaced, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotCheckout, root)
	}
}

// Step performs the single transition out of the state Detect reports and
// returns the state reached. It is a no-op for StateConverted.
func (m *Manager) Step(root string) (State, error) {
	state, err := m.Detect(root)
	if err != nil {
		return 0, err
	}

	switch state {
	case StateOriginal:
		parent, name := filepath.Split(filepath.Clean(root))
		staging := filepath.Join(parent, "."+name+stagingInfix+m.newID())
		if err := m.fs.Rename(root, staging); err != nil {
			return state, fmt.Errorf("moving %s to %s: %w", root, staging, err)
		}
		return StateStaged, nil

	case StateStaged:
		staging, err := m.stagingPaths(root)
		if err != nil {
			return state, err
		}
		perm := os.FileMode(0o755)
		if info, err := m.fs.Stat(staging[0]); err == nil {
			perm = info.Mode().Perm()
		}
		if err := m.fs.Mkdir(root, perm); err != nil {
			return state, fmt.Errorf("recreating %s: %w", root, err)
		}
		return StateReserved, nil

	case StateReserved:
		staging, err := m.stagingPaths(root)
		if err != nil {
			return state, err
		}
		if err := m.fs.Rename(staging[0], AnchorPath(root)); err != nil {
			return state, fmt.Errorf("moving %s to %s: %w", staging[0], AnchorPath(root), err)
		}
		return StatePlaced, nil

	case StatePlaced:
		if err := m.fs.MkdirAll(SatellitesPath(root), 0o755); err != nil {
			return state, fmt.Errorf("creating %s: %w", SatellitesPath(root), err)
		}
		if err := m.fs.MkdirAll(MarkerPath(root), 0o755); err != nil {
			return state, fmt.Errorf("creating %s: %w", MarkerPath(root), err)
		}
		return StateConverted, nil
	}

	return state, nil
}

// Convert turns root into the dual-root layout, resuming an interrupted
// conversion if one is found. Converting a converted root does nothing.
func (m *Manager) Convert(root string) error {
	state, err := m.Detect(root)
	if err != nil {
		return err
	}
	for state != StateConverted {
		if state, err = m.Step(root); err != nil {
			return err
		}
	}
	return nil
}
