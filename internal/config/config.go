// Package config provides the user-global and per-repository settings for
// orbit. Both are read-only inputs to the worktree lifecycle.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DefaultStaleDays is the staleness threshold used when nothing is configured.
const DefaultStaleDays = 14

// Global holds the user-global settings.
type Global struct {
	// Editor is launched on new worktrees unless --no-open is given.
	// Empty means no editor is launched by default.
	Editor    string `mapstructure:"editor"`
	StaleDays int    `mapstructure:"stale_days"`
	AutoFetch bool   `mapstructure:"auto_fetch"`
	Color     bool   `mapstructure:"color"`
}

// Defaults returns a Global with default values.
func Defaults() Global {
	return Global{
		StaleDays: DefaultStaleDays,
		AutoFetch: true,
		Color:     true,
	}
}

// GlobalPath returns the default location of the user-global settings file.
func GlobalPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "orbit", "config.toml"), nil
}

// LoadGlobal reads the user-global settings from path, or from GlobalPath
// when path is empty. A missing file yields the defaults. Environment
// variables prefixed ORBIT_ override file values.
func LoadGlobal(path string) (Global, error) {
	explicit := path != ""
	if !explicit {
		p, err := GlobalPath()
		if err != nil {
			return Global{}, err
		}
		path = p
	}

	v := viper.New()
	defaults := Defaults()
	v.SetDefault("editor", defaults.Editor)
	v.SetDefault("stale_days", defaults.StaleDays)
	v.SetDefault("auto_fetch", defaults.AutoFetch)
	v.SetDefault("color", defaults.Color)
	v.SetEnvPrefix("orbit")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return Global{}, fmt.Errorf("reading %s: %w", path, err)
		}
		// No file; defaults and environment apply.
	}

	var cfg Global
	if err := v.Unmarshal(&cfg); err != nil {
		return Global{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Global{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values the lifecycle cannot use.
func (g Global) Validate() error {
	if g.StaleDays < 0 {
		return fmt.Errorf("stale_days must not be negative, got %d", g.StaleDays)
	}
	return nil
}

// Project holds the per-repository settings stored in the layout marker
// directory.
type Project struct {
	Worktree ProjectWorktree `toml:"worktree"`
	Hooks    ProjectHooks    `toml:"hooks"`
}

// ProjectWorktree holds worktree settings for one repository.
type ProjectWorktree struct {
	// BaseBranch overrides main/master detection when set.
	BaseBranch string `toml:"base_branch,omitempty"`
}

// ProjectHooks holds shell commands run at lifecycle events.
type ProjectHooks struct {
	// PostCreate commands run in order inside each new worktree.
	PostCreate []string `toml:"post_create"`
}

// ProjectFile is the settings file name inside the marker directory.
const ProjectFile = "config.toml"

// LoadProject reads the project settings at path. A missing file yields the
// zero Project.
func LoadProject(fs afero.Fs, path string) (Project, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Project{}, nil
		}
		return Project{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var p Project
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return Project{}, fmt.Errorf("parsing %s: %s", path, strictErr.String())
		}
		return Project{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// SaveProject writes p to path, creating the parent directory if needed.
func SaveProject(fs afero.Fs, path string, p Project) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding project settings: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// DefaultProjectTemplate returns the project settings written by `orbit
// init`, with comments.
func DefaultProjectTemplate() string {
	return `# orbit project settings

[worktree]
# Branch new worktrees start from and are compared against.
# Defaults to main, then master.
# base_branch = "main"

[hooks]
# Shell commands run inside each new worktree, in order.
# A failing command stops creation; the worktree is left in place.
post_create = []
`
}
