package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"
)

// ErrNotInstalled is matched by every *NotInstalledError.
var ErrNotInstalled = errors.New("tool not installed")

// NotInstalledError reports that a tool binary could not be resolved.
type NotInstalledError struct {
	Binary string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s is not installed", e.Binary)
}

func (e *NotInstalledError) Unwrap() error {
	return ErrNotInstalled
}

// versionTimeout bounds "--version" probes.
const versionTimeout = 30 * time.Second

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// FindBinary resolves name in order: <root>/.venv/bin, each project-relative
// extra dir, then $PATH. Only regular files with an exec bit count.
func FindBinary(root, name string, extraDirs ...string) (string, error) {
	if root != "" {
		candidates := []string{filepath.Join(root, ".venv", "bin", name)}
		for _, dir := range extraDirs {
			candidates = append(candidates, filepath.Join(root, dir, name))
		}
		for _, c := range candidates {
			if isExecutable(c) {
				return c, nil
			}
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", &NotInstalledError{Binary: name}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// QueryVersion returns the first dotted version number printed by
// "<name> --version", or "unknown".
func QueryVersion(ctx context.Context, run CommandRunner, root, name string, extraDirs ...string) string {
	bin, err := FindBinary(root, name, extraDirs...)
	if err != nil {
		return "unknown"
	}
	if run == nil {
		run = ExecRunner
	}
	res, err := run(ctx, Command{Name: bin, Args: []string{"--version"}, Dir: root, Timeout: versionTimeout})
	if err != nil || res.ExitCode != 0 {
		return "unknown"
	}
	if v := versionPattern.FindString(res.Combined()); v != "" {
		return v
	}
	return "unknown"
}
