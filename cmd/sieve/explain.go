package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/report"
)

var explainCmd = &cobra.Command{
	Use:   "explain <issue-id>",
	Short: "Show fix instructions for an issue",
	Long: `Show prioritised fix instructions for an issue from a previous scan.

Issue ids are stable across runs. When 'sieve serve' is running its cache
is used; otherwise the project is scanned first to find the issue.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := signalContext()
		defer cancel()

		exec, done, err := issueExecutor(ctx, "explain")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		fi := exec.GetFixInstructions(ctx, args[0])
		done()

		if asJSON {
			_ = writeJSON(os.Stdout, fi)
		} else {
			report.Fix(os.Stdout, fi)
		}
		if fi.Error != "" {
			os.Exit(exitError)
		}
	},
}

func init() {
	explainCmd.Flags().Bool("json", false, "Print the instructions as JSON")
	rootCmd.AddCommand(explainCmd)
}

// issueExecutor returns an executor whose cache holds the project's current
// issues: the running server's, or a local one after a full scan. done
// releases local resources.
func issueExecutor(ctx context.Context, source string) (control.Executor, func(), error) {
	if client := serverClient(); client != nil {
		log.Debugw("using running server", "socket", settings.SocketPath(projectRoot))
		return control.NewRemoteExecutor(client, log), func() {}, nil
	}

	a, err := newApp(source, false)
	if err != nil {
		return nil, nil, err
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintln(os.Stderr, gray("No running server, scanning project..."))
	result := a.exec.Scan(ctx, settings.Domains, nil)
	if result.Error != "" {
		a.Close()
		return nil, nil, fmt.Errorf("scan failed: %s", result.Error)
	}
	return a.exec, a.Close, nil
}
