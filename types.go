package main

import (
	"math"

	"github.com/leighmcculloch/orbit/internal/lifecycle"
)

// Worktree represents a single worktree in a machine-readable listing
type Worktree struct {
	Name                  string   `json:"name" yaml:"name"`
	Path                  string   `json:"path" yaml:"path"`
	Branch                string   `json:"branch" yaml:"branch"`
	IsAnchor              bool     `json:"is_anchor" yaml:"is_anchor"`
	StalenessDays         *float64 `json:"staleness_days" yaml:"staleness_days"`
	HasUncommittedChanges bool     `json:"has_uncommitted_changes" yaml:"has_uncommitted_changes"`
	HasUnmergedCommits    bool     `json:"has_unmerged_commits" yaml:"has_unmerged_commits"`
	SafeToRemove          bool     `json:"safe_to_remove" yaml:"safe_to_remove"`
}

// Listing represents the output of worktree list in json or yaml
type Listing struct {
	BaseBranch string     `json:"base_branch" yaml:"base_branch"`
	Worktrees  []Worktree `json:"worktrees" yaml:"worktrees"`
}

func newListing(result lifecycle.ListResult) Listing {
	listing := Listing{
		BaseBranch: result.Base,
		Worktrees:  make([]Worktree, 0, len(result.Worktrees)),
	}
	for _, info := range result.Worktrees {
		var days *float64
		if info.StalenessDays != nil {
			d := math.Round(*info.StalenessDays*100) / 100
			days = &d
		}
		listing.Worktrees = append(listing.Worktrees, Worktree{
			Name:                  info.Name,
			Path:                  info.Path,
			Branch:                info.Branch,
			IsAnchor:              info.IsAnchor,
			StalenessDays:         days,
			HasUncommittedChanges: info.Safety.HasUncommittedChanges,
			HasUnmergedCommits:    info.Safety.HasUnmergedCommits,
			SafeToRemove:          info.Safety.IsSafeToRemove(),
		})
	}
	return listing
}
