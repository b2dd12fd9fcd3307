package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scan queries on the control socket",
	Long: `Run a long-lived executor that answers scan, check_file,
get_fix_instructions, apply_fix, get_status and clear_cache commands on a
unix socket (control.socket_path, default .sieve/control.sock).

Each request is one line of JSON, for example:
  {"type": "scan", "domains": ["security"]}
  {"type": "get_fix_instructions", "issue_id": "..."}

While the server runs, 'sieve check', 'explain', 'fix', 'status' and
'repl' use it and share its issue cache. With --watch (the default) changed
files are also scanned in the background.`,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp("serve", true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		defer a.Close()

		srv, err := control.NewServer(&control.ServerConfig{
			SocketPath: settings.SocketPath(projectRoot),
			Handler:    control.NewExecutorHandler(a.exec),
			RateLimit:  settings.Control.RateLimit,
			Burst:      settings.Control.Burst,
			Logger:     log,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				log.Warnw("failed to stop control server", "error", err)
			}
		}()

		var w *watcher.Watcher
		if watch {
			w, err = startWatcher(ctx, a.exec, func(_ context.Context, r *orchestrator.ScanResult) {
				log.Infow("background scan finished",
					"files", len(r.Files), "issues", r.TotalIssues, "blocking", r.Blocking)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return
			}
			defer w.Stop()
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Serving %s on %s\n", green("✓"), projectRoot, srv.SocketPath())
		if w != nil {
			fmt.Printf("  watching for changes (debounce %s)\n", w.Debounce())
		}
		if a.publisher != nil {
			fmt.Printf("  publishing scans to %s\n", settings.Events.Subject)
		}

		<-ctx.Done()
		fmt.Println("\nShutting down...")
	},
}

func init() {
	serveCmd.Flags().Bool("watch", true, "Scan changed files in the background")
	rootCmd.AddCommand(serveCmd)
}
