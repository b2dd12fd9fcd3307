package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sieve/internal/config"
	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start interactive REPL shell",
	Long: `Start an interactive shell for scanning and fixing.

The REPL keeps one executor (and its issue cache) for the whole session, so
'scan' followed by 'explain <id>' and 'fix <id>' needs only one scan. When
'sieve serve' is running the REPL attaches to it instead.

Type 'help' in the REPL for available commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := &repl.Config{
			HistoryFile: filepath.Join(projectRoot, config.StateDir, "repl_history"),
		}
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryFile), 0o755); err != nil {
			cfg.HistoryFile = ""
		}

		if client := serverClient(); client != nil {
			cfg.Executor = control.NewRemoteExecutor(client, log)
		} else {
			a, err := newApp("repl", false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(exitError)
			}
			defer a.Close()
			cfg.Executor = a.exec
		}

		r, err := repl.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create REPL: %v\n", err)
			os.Exit(exitError)
		}

		if err := r.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
