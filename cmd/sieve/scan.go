package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/git"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan [files...]",
	Short: "Scan the project",
	Long: `Run the analyzers for the selected domains and print a unified report.

With no files the whole project is scanned. With files (or --changed) only
those files are passed to the tools; when --domains is not given the domains
are chosen from the files' languages.

Domains: sast, sca, iac, container, linting, type_checking, testing,
coverage, plus the aliases security, quality and all.

Exit codes:
  0 - No blocking issues
  1 - Issues at or above fail_on were found
  2 - The scan could not run`,
	Run: func(cmd *cobra.Command, args []string) {
		domains, _ := cmd.Flags().GetStringSlice("domains")
		changed, _ := cmd.Flags().GetBool("changed")
		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")

		if code := runScan(domains, args, changed, asJSON, limit); code != 0 {
			os.Exit(code)
		}
	},
}

func runScan(domains, files []string, changed, asJSON bool, limit int) int {
	ctx, cancel := signalContext()
	defer cancel()

	files = absPaths(files)
	if changed {
		repo, err := git.Open(projectRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		files, err = repo.ChangedFiles(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		if len(files) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s No changed files\n", green("✓"))
			return 0
		}
	}

	a, err := newApp("scan", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	defer a.Close()

	var result *orchestrator.ScanResult
	switch {
	case len(domains) > 0:
		result = a.exec.Scan(ctx, domains, files)
	case len(files) > 0:
		result = a.exec.ScanFiles(ctx, files)
	default:
		result = a.exec.Scan(ctx, settings.Domains, nil)
	}

	if asJSON {
		if err := writeJSON(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
	} else {
		report.Scan(os.Stdout, result, limit)
	}
	return exitFor(result)
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func init() {
	scanCmd.Flags().StringSliceP("domains", "d", nil, "Domains to scan (default: configured domains)")
	scanCmd.Flags().Bool("changed", false, "Scan only files changed in the git worktree")
	scanCmd.Flags().Bool("json", false, "Print the result as JSON")
	scanCmd.Flags().Int("limit", 50, "Maximum issues to list (0 = all)")
	rootCmd.AddCommand(scanCmd)
}
