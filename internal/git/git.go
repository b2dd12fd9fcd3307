// Package git finds the files changed in a project's working tree so a scan
// can be narrowed to them (`sieve scan --changed`).
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// Repo reads worktree status through go-git, without a git binary.
type Repo struct {
	repo     *gogit.Repository
	worktree string
	root     string
}

// Open finds the repository containing projectRoot (walking up to the
// nearest .git).
func Open(projectRoot string) (*Repo, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository at %s has no worktree: %w", root, err)
	}

	return &Repo{repo: repo, worktree: wt.Filesystem.Root(), root: root}, nil
}

// GetStatus returns the worktree status. A file that is both staged and
// modified again is reported once.
func (r *Repo) GetStatus(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", r.worktree, err)
	}

	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
	}
	for path, fs := range st {
		switch {
		case fs.Staging == gogit.Untracked || fs.Worktree == gogit.Untracked:
			status.Untracked = append(status.Untracked, path)
		case fs.Staging == gogit.Deleted || fs.Worktree == gogit.Deleted:
			status.Deleted = append(status.Deleted, path)
		case fs.Staging == gogit.Renamed || fs.Staging == gogit.Copied:
			status.Renamed = append(status.Renamed, path)
		case fs.Staging == gogit.Added:
			status.Added = append(status.Added, path)
		case fs.Staging == gogit.Modified || fs.Worktree == gogit.Modified ||
			fs.Staging == gogit.UpdatedButUnmerged || fs.Worktree == gogit.UpdatedButUnmerged:
			status.Modified = append(status.Modified, path)
		default:
			continue
		}
		status.HasChanges = true
	}

	for _, list := range [][]string{status.Modified, status.Untracked, status.Deleted, status.Added, status.Renamed} {
		sort.Strings(list)
	}
	return status, nil
}

// ChangedFiles returns absolute paths of modified, added, renamed and
// untracked files that still exist and lie under the project root.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	status, err := r.GetStatus(ctx)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, list := range [][]string{status.Modified, status.Added, status.Renamed, status.Untracked} {
		for _, rel := range list {
			abs := filepath.Join(r.worktree, filepath.FromSlash(rel))
			if !within(r.root, abs) {
				continue
			}
			if info, err := os.Stat(abs); err != nil || info.IsDir() {
				continue
			}
			files = append(files, abs)
		}
	}
	sort.Strings(files)
	return files, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
