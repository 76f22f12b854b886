package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leighmcculloch/orbit/internal/config"
	"github.com/leighmcculloch/orbit/internal/editor"
	"github.com/leighmcculloch/orbit/internal/lifecycle"
	"github.com/leighmcculloch/orbit/internal/ui"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// env is what every command needs, built once flags are parsed.
type env struct {
	global  config.Global
	printer *ui.Printer
	manager *lifecycle.Manager
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		verbose    bool
		configPath string
		noColor    bool
	)

	setup := func() (*env, error) {
		global, err := config.LoadGlobal(configPath)
		if err != nil {
			return nil, err
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		logger.Debug("starting", "dir", cwd, "config", configPath)

		printer := ui.NewPrinter(stdout, global.Color && !noColor)
		return &env{
			global:  global,
			printer: printer,
			manager: lifecycle.NewManager(lifecycle.Options{
				Dir:        cwd,
				Global:     global,
				Reporter:   printer,
				Confirmer:  ui.NewConfirmer(stdin, stdout),
				HookRunner: lifecycle.ShellHookRunner{Stdout: stdout},
				Logger:     logger,
			}),
		}, nil
	}

	rootCmd := &cobra.Command{
		Use:   "orbit",
		Short: "Manage git worktrees in an anchor/satellites layout",
		Long: "Keep a repository's primary checkout in anchor/ and its linked worktrees in satellites/, " +
			"and create, list, and safely remove those worktrees.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "global config file (default is $XDG_CONFIG_HOME/orbit/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Convert the repository to the worktree layout",
		Long:  "Move the checkout into anchor/, create satellites/, and write default project settings to .orbit/config.toml.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			result, err := e.manager.Init(cmd.Context())
			if err != nil {
				return err
			}
			e.printer.Init(result)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the repository layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			status, err := e.manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			e.printer.Status(status)
			return nil
		},
	}

	worktreeCmd := &cobra.Command{
		Use:     "worktree",
		Aliases: []string{"wt"},
		Short:   "Create, list, and remove worktrees",
	}
	worktreeCmd.AddCommand(
		newCreateCmd(setup),
		newListCmd(setup, stdout),
		newRemoveCmd(setup),
		newCleanupCmd(setup),
	)

	rootCmd.AddCommand(initCmd, statusCmd, worktreeCmd)
	rootCmd.SetArgs(args[1:])
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, lifecycle.ErrCancelled) {
			fmt.Fprintln(stdout, "Cancelled, nothing removed.")
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newCreateCmd(setup func() (*env, error)) *cobra.Command {
	var opts lifecycle.CreateOptions

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a worktree",
		Long: "Create satellites/NAME on branch NAME, converting the repository to the worktree layout first if needed. " +
			"An existing branch NAME is checked out; otherwise it is created from the base branch.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			opts.Name = args[0]
			_, err = e.manager.Create(cmd.Context(), opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Base, "base", "", "branch to start from (default: project setting, then main, then master)")
	cmd.Flags().StringVar(&opts.Editor, "open", "", fmt.Sprintf("editor to open the worktree in %v", editor.Names()))
	cmd.Flags().BoolVar(&opts.NoOpen, "no-open", false, "do not open an editor")
	return cmd
}

func newListCmd(setup func() (*env, error), stdout io.Writer) *cobra.Command {
	var (
		stale  float64
		base   string
		format string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List worktrees with their staleness and safety",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			e, err := setup()
			if err != nil {
				return err
			}

			opts := lifecycle.ListOptions{Base: base}
			if cmd.Flags().Changed("stale") {
				opts.StaleDays = &stale
			}
			result, err := e.manager.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			switch format {
			case formatTable:
				threshold := float64(e.global.StaleDays)
				if opts.StaleDays != nil {
					threshold = stale
				}
				e.printer.Worktrees(result, threshold, opts.StaleDays != nil)
				return nil
			default:
				return writeListing(stdout, format, newListing(result))
			}
		},
	}
	cmd.Flags().Float64Var(&stale, "stale", 0, "only show worktrees whose last commit is at least this many days old")
	cmd.Flags().StringVar(&base, "base", "", "branch to compare against")
	cmd.Flags().StringVarP(&format, "format", "o", formatTable, "output format: table, json, or yaml")
	return cmd
}

func newRemoveCmd(setup func() (*env, error)) *cobra.Command {
	var opts lifecycle.RemoveOptions

	cmd := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a worktree",
		Long:    "Remove satellites/NAME. Worktrees with uncommitted changes or unmerged commits are kept unless --force is given.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			opts.Name = args[0]
			return e.manager.Remove(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "remove even with uncommitted changes or unmerged commits")
	cmd.Flags().StringVar(&opts.Base, "base", "", "branch to check for unmerged commits against")
	return cmd
}

func newCleanupCmd(setup func() (*env, error)) *cobra.Command {
	var opts lifecycle.CleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale worktrees",
		Long: "Remove worktrees whose last commit is older than --older-than days. " +
			"Worktrees with uncommitted changes or unmerged commits are skipped unless --include-unmerged is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				opts.OlderThanDays = float64(e.global.StaleDays)
			}
			if opts.OlderThanDays < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			_, err = e.manager.Cleanup(cmd.Context(), opts)
			return err
		},
	}
	cmd.Flags().Float64Var(&opts.OlderThanDays, "older-than", config.DefaultStaleDays, "age in days of the last commit (default from stale_days)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would be removed without removing anything")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.IncludeUnmerged, "include-unmerged", false, "also remove stale worktrees with uncommitted changes or unmerged commits")
	cmd.Flags().StringVar(&opts.Base, "base", "", "branch to check for unmerged commits against")
	return cmd
}
