package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/history"
	"github.com/steveyegge/sieve/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans",
	Long:  `List recorded scans, newest first, with per-severity issue counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		path := settings.HistoryPath(projectRoot)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No scans recorded yet.")
			return
		}

		store, err := history.Open(path, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		defer store.Close()

		records, err := store.Recent(context.Background(), limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			store.Close()
			os.Exit(exitError)
		}

		if asJSON {
			_ = writeJSON(os.Stdout, records)
			return
		}
		report.History(os.Stdout, records)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of scans to show")
	historyCmd.Flags().Bool("json", false, "Print records as JSON")
	rootCmd.AddCommand(historyCmd)
}
