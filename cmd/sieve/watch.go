package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/report"
	"github.com/steveyegge/sieve/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-scan files as they change",
	Long: `Watch the project and scan changed files after a quiet period
(watch.debounce_ms, default 1000). Changes inside ignored directories such
as .git, node_modules and .venv are skipped.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp("watch", true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		defer a.Close()

		w, err := startWatcher(ctx, a.exec, func(_ context.Context, r *orchestrator.ScanResult) {
			report.Scan(os.Stdout, r, limit)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(exitError)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Watching %s (debounce %s). Press Ctrl+C to stop.\n",
			cyan("→"), projectRoot, w.Debounce())

		<-ctx.Done()
		w.Stop()
		fmt.Println("\nStopped watching.")
	},
}

func init() {
	watchCmd.Flags().Int("limit", 25, "Maximum issues to list per scan (0 = all)")
	rootCmd.AddCommand(watchCmd)
}

// startWatcher starts a watcher feeding exec and reporting through cb.
func startWatcher(ctx context.Context, exec *orchestrator.Executor, cb watcher.ResultCallback) (*watcher.Watcher, error) {
	w, err := watcher.New(&watcher.Config{
		ProjectRoot: projectRoot,
		Scanner:     exec,
		Debounce:    settings.Debounce(),
		Ignore:      settings.Watch.Ignore,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if cb != nil {
		w.OnResult(cb)
	}
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return w, nil
}
