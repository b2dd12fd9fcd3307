package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// initRepo creates a repository with app.py, lib/util.py and old.py committed.
func initRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)

	write(t, root, "app.py", "print('hi')\n")
	write(t, root, "lib/util.py", "X = 1\n")
	write(t, root, "old.py", "pass\n")
	write(t, root, ".gitignore", "*.log\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddGlob("."))
	_, err = wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return root
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, gogit.ErrRepositoryNotExists)
}

func TestCleanWorktree(t *testing.T) {
	repo, err := Open(initRepo(t))
	require.NoError(t, err)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.HasChanges)

	files, err := repo.ChangedFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestChangedFiles(t *testing.T) {
	root := initRepo(t)
	write(t, root, "app.py", "print('changed')\n")
	write(t, root, "new.py", "y = 2\n")
	write(t, root, "debug.log", "ignored\n")
	require.NoError(t, os.Remove(filepath.Join(root, "old.py")))

	repo, err := Open(root)
	require.NoError(t, err)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HasChanges)
	assert.Equal(t, []string{"app.py"}, status.Modified)
	assert.Equal(t, []string{"new.py"}, status.Untracked)
	assert.Equal(t, []string{"old.py"}, status.Deleted)

	files, err := repo.ChangedFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "app.py"),
		filepath.Join(root, "new.py"),
	}, files)
}

func TestChangedFilesLimitedToSubdirectory(t *testing.T) {
	root := initRepo(t)
	write(t, root, "app.py", "print('changed')\n")
	write(t, root, "lib/util.py", "X = 2\n")

	repo, err := Open(filepath.Join(root, "lib"))
	require.NoError(t, err)

	files, err := repo.ChangedFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "lib", "util.py")}, files)
}

func TestGetStatusCancelled(t *testing.T) {
	repo, err := Open(initRepo(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.GetStatus(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
