// Command sieve runs static analysis tools over a project and reports one
// unified set of issues.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/sieve/internal/config"
	"github.com/steveyegge/sieve/internal/logging"
)

// Exit codes
const (
	exitBlocking = 1 // scan found issues at or above fail_on
	exitError    = 2 // sieve itself failed
)

var (
	// Flags
	rootFlag  string
	debugFlag bool

	// Set up in PersistentPreRunE
	projectRoot string
	settings    *config.Config
	log         *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "sieve",
	Short: "Unified static analysis across security, quality and coverage tools",
	Long: `sieve runs semgrep, trivy, ruff, eslint, mypy, pytest and coverage.py
over a project and merges their findings into one prioritised issue list.

Configuration is read from .sieve.yml in the project root, then .env, then
SIEVE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root := rootFlag
		if root == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			root = cwd
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving project root: %w", err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return fmt.Errorf("project root %s is not a directory", abs)
		}
		projectRoot = abs

		settings, err = config.Load(projectRoot)
		if err != nil {
			return err
		}

		log, err = logging.New(debugFlag)
		if err != nil {
			return err
		}
		log.Debugw("configuration loaded", "root", projectRoot, "config", settings.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}
