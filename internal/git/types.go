package git

import (
	"context"
)

// StatusReader reports working tree changes.
// Implemented by *Repo; tests substitute fakes.
type StatusReader interface {
	// GetStatus returns detailed status information.
	GetStatus(ctx context.Context) (*Status, error)

	// ChangedFiles returns the absolute paths of files worth rescanning.
	ChangedFiles(ctx context.Context) ([]string, error)
}

// Status represents the git status of a repository.
// Paths are relative to the worktree root.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed or copied files, by new name
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}
