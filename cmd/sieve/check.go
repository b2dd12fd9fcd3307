package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Analyze a single file",
	Long: `Run the analyzers that apply to one file's language. Unknown languages
get the security scans.

When 'sieve serve' is running for this project the check runs there, so its
issues join the server's cache.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		if code := runCheck(args[0], asJSON); code != 0 {
			os.Exit(code)
		}
	},
}

func runCheck(path string, asJSON bool) int {
	ctx, cancel := signalContext()
	defer cancel()

	var exec control.Executor
	if client := serverClient(); client != nil {
		exec = control.NewRemoteExecutor(client, log)
	} else {
		a, err := newApp("check", false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		defer a.Close()
		exec = a.exec
	}

	// relative to the caller's directory, which may differ from the root
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	result := exec.CheckFile(ctx, path)
	if asJSON {
		if err := writeJSON(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
	} else {
		report.Scan(os.Stdout, result, 0)
	}
	return exitFor(result)
}

func init() {
	checkCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(checkCmd)
}
