package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/report"
)

var fixCmd = &cobra.Command{
	Use:   "fix <issue-id>",
	Short: "Apply an automatic fix",
	Long: `Ask the tool that reported an issue to fix it in place.

Only linting issues can be fixed automatically. Re-run 'sieve scan' (or
'sieve check <file>') afterwards to confirm the issue is gone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		exec, done, err := issueExecutor(ctx, "fix")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		result := exec.ApplyFix(ctx, args[0])
		done()

		report.FixResult(os.Stdout, result)
		if !result.Success {
			os.Exit(exitError)
		}
	},
}

func init() {
	rootCmd.AddCommand(fixCmd)
}
