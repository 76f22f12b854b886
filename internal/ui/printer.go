// Package ui renders lifecycle results for a terminal and asks for
// confirmation.
package ui

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/leighmcculloch/orbit/internal/lifecycle"
	"github.com/leighmcculloch/orbit/internal/worktree"
)

type styles struct {
	step    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	dim     lipgloss.Style
	header  lipgloss.Style
	path    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		step:    r.NewStyle().Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("241")),
		header:  r.NewStyle().Bold(true),
		path:    r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Printer writes progress and results to one writer. It implements
// lifecycle.Reporter.
type Printer struct {
	out io.Writer
	st  styles
}

var _ lifecycle.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to w. Colors are used only when w is
// a terminal that supports them and color is true.
func NewPrinter(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{out: w, st: newStyles(r)}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Step implements lifecycle.Reporter.
func (p *Printer) Step(msg string) {
	p.printf("%s %s\n", p.st.step.Render("→"), msg)
}

// Created implements lifecycle.Reporter.
func (p *Printer) Created(path, branch string, attached bool) {
	how := "new branch"
	if attached {
		how = "existing branch"
	}
	p.printf("%s Created worktree %s on %s %s\n", p.st.success.Render("✓"), p.st.path.Render(path), how, branch)
}

// Removed implements lifecycle.Reporter.
func (p *Printer) Removed(name string) {
	p.printf("%s Removed %s\n", p.st.success.Render("✓"), name)
}

// CleanupPlan implements lifecycle.Reporter.
func (p *Printer) CleanupPlan(plan lifecycle.CleanupPlan, dryRun bool) {
	if len(plan.Candidates) == 0 && len(plan.Skipped) == 0 {
		p.printf("No worktrees older than %s.\n", formatDays(plan.Threshold))
		return
	}

	if len(plan.Candidates) > 0 {
		verb := "Removing"
		if dryRun {
			verb = "Would remove"
		}
		p.printf("%s %d worktree(s) older than %s:\n", verb, len(plan.Candidates), formatDays(plan.Threshold))
		for _, info := range plan.Candidates {
			p.printf("  %s %s\n", info.Name, p.st.dim.Render(staleness(info)))
		}
	}
	if len(plan.Skipped) > 0 {
		p.printf("%s %d stale worktree(s) with unsaved work (use --include-unmerged to remove):\n",
			p.st.warn.Render("Skipping"), len(plan.Skipped))
		for _, info := range plan.Skipped {
			p.printf("  %s %s: %s\n", info.Name, p.st.dim.Render(staleness(info)),
				strings.Join(info.Safety.BlockedReasons(), ", "))
		}
	}
	if dryRun {
		p.printf("Dry run, nothing removed.\n")
	}
}

// Worktrees prints a listing. Entries at least staleDays old are
// highlighted. With staleOnly, the listing is of stale worktrees and shows
// whether each is safe to remove.
func (p *Printer) Worktrees(result lifecycle.ListResult, staleDays float64, staleOnly bool) {
	if staleOnly {
		if len(result.Worktrees) == 0 {
			p.printf("No stale worktrees.\n")
			return
		}
		p.printf("%s\n", p.st.header.Render("Stale worktrees:"))
	} else {
		p.printf("%s %s\n", p.st.header.Render("Worktrees"), p.st.dim.Render("(base: "+result.Base+")"))
	}

	nameWidth, branchWidth := 0, 0
	for _, info := range result.Worktrees {
		nameWidth = max(nameWidth, lipgloss.Width(info.Name))
		branchWidth = max(branchWidth, lipgloss.Width(branchLabel(info)))
	}

	for _, info := range result.Worktrees {
		name := fmt.Sprintf("%-*s", nameWidth, info.Name)
		branch := fmt.Sprintf("%-*s", branchWidth, branchLabel(info))

		var markers []string
		if info.StalenessDays == nil {
			markers = append(markers, p.st.dim.Render("(new)"))
		}
		switch {
		case info.IsAnchor && !staleOnly:
			markers = append(markers, p.st.dim.Render("(anchor)"))
		case info.StalenessDays == nil:
		case info.IsStale(staleDays):
			markers = append(markers, p.st.warn.Render(staleness(info)))
		default:
			markers = append(markers, staleness(info))
		}

		line := fmt.Sprintf("  %s  %s  %s", name, branch, strings.Join(markers, "  "))
		if staleOnly {
			line += "  " + p.safety(info)
		}
		p.printf("%s\n", strings.TrimRight(line, " "))
	}
}

func (p *Printer) safety(info worktree.Info) string {
	if info.IsAnchor {
		return p.st.dim.Render("(anchor)")
	}
	if info.Safety.IsSafeToRemove() {
		return p.st.success.Render("safe to remove")
	}
	return p.st.warn.Render(strings.Join(info.Safety.BlockedReasons(), ", "))
}

// Status prints a repository summary.
func (p *Printer) Status(s lifecycle.StatusResult) {
	p.printf("%s\n", p.st.header.Render("Repository status"))
	p.printf("  Root:      %s\n", p.st.path.Render(s.Root))
	if s.Converted {
		p.printf("  Layout:    %s\n", p.st.success.Render("worktree (anchor/ + satellites/)"))
		p.printf("  Anchor:    %s\n", p.st.path.Render(s.Anchor))
	} else {
		p.printf("  Layout:    %s\n", p.st.warn.Render("standard"))
	}
	base := s.Base
	if base == "" {
		base = p.st.warn.Render("none found")
	}
	p.printf("  Base:      %s\n", base)
	p.printf("  Worktrees: %d\n", s.Worktrees)
	if !s.Converted {
		p.printf("\nRun %s to convert to the worktree layout.\n", p.st.step.Render("orbit init"))
	}
}

// Init prints the outcome of initialization.
func (p *Printer) Init(r lifecycle.InitResult) {
	if r.Converted {
		p.printf("%s Converted %s to the worktree layout\n", p.st.success.Render("✓"), p.st.path.Render(r.Root))
	} else {
		p.printf("%s %s already uses the worktree layout\n", p.st.success.Render("✓"), p.st.path.Render(r.Root))
	}
	if r.ConfigCreated {
		p.printf("%s Wrote %s\n", p.st.success.Render("✓"), p.st.path.Render(r.ConfigPath))
	} else {
		p.printf("  Keeping existing %s\n", r.ConfigPath)
	}
}

func branchLabel(info worktree.Info) string {
	if info.Detached() {
		return "(detached)"
	}
	return info.Branch
}

func staleness(info worktree.Info) string {
	if info.StalenessDays == nil {
		return "(new)"
	}
	return "(" + formatDays(*info.StalenessDays) + ")"
}

func formatDays(days float64) string {
	n := int(math.Floor(days))
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
