package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed tools and configuration",
	Long: `Show which analysis tools are registered and installed, the enabled
domains and the fail_on level. When 'sieve serve' is running, its issue
cache size is shown too.`,
	Run: func(cmd *cobra.Command, args []string) {
		versions, _ := cmd.Flags().GetBool("versions")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := context.Background()

		var st *orchestrator.Status
		if client := serverClient(); client != nil {
			st = control.NewRemoteExecutor(client, log).GetStatus(ctx)
		} else {
			a, err := newApp("status", false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(exitError)
			}
			st = a.exec.GetStatus(ctx)
			if versions {
				st.ToolVersions = a.exec.ToolVersions(ctx)
			}
			a.Close()
		}

		if asJSON {
			_ = writeJSON(os.Stdout, st)
		} else {
			report.Status(os.Stdout, st)
		}
		if st.Error != "" {
			os.Exit(exitError)
		}
	},
}

func init() {
	statusCmd.Flags().Bool("versions", false, "Query each installed tool's version")
	statusCmd.Flags().Bool("json", false, "Print status as JSON")
	rootCmd.AddCommand(statusCmd)
}
