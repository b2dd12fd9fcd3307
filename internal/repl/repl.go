package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/orchestrator"
)

// REPL represents the interactive shell
type REPL struct {
	exec     control.Executor
	out      io.Writer
	rl       *readline.Instance
	ctx      context.Context
	history  string
	commands map[string]CommandHandler

	// lastScan backs the issues command
	lastScan *orchestrator.ScanResult
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Executor control.Executor
	// Out defaults to stdout
	Out io.Writer
	// HistoryFile persists readline history; empty keeps it in memory
	HistoryFile string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		exec:     cfg.Executor,
		out:      out,
		ctx:      context.Background(),
		history:  cfg.HistoryFile,
		commands: make(map[string]CommandHandler),
	}

	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("sieve> "),
		HistoryFile:       r.history,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := strings.TrimPrefix(strings.ToLower(parts[0]), "/")
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), parts[0])
	return nil
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["scan"] = r.cmdScan
	r.commands["check"] = r.cmdCheck
	r.commands["explain"] = r.cmdExplain
	r.commands["fix"] = r.cmdFix
	r.commands["status"] = r.cmdStatus
	r.commands["issues"] = r.cmdIssues
	r.commands["clear"] = r.cmdClear
}

func (r *REPL) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("scan",
			readline.PcItem("all"),
			readline.PcItem("sast"),
			readline.PcItem("sca"),
			readline.PcItem("iac"),
			readline.PcItem("container"),
			readline.PcItem("linting"),
			readline.PcItem("type_checking"),
			readline.PcItem("testing"),
			readline.PcItem("coverage"),
		),
		readline.PcItem("check"),
		readline.PcItem("explain"),
		readline.PcItem("fix"),
		readline.PcItem("status"),
		readline.PcItem("issues"),
		readline.PcItem("clear"),
		readline.PcItem("exit"),
	)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Welcome to sieve"))
	fmt.Fprintln(r.out, "Unified static analysis across security, quality and coverage tools")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"scan [domains...]", "Scan the project (default: all enabled domains)"},
		{"check <file>", "Run the analyzers for one file's language"},
		{"issues", "List issues from the last scan"},
		{"explain <id>", "Show fix instructions for an issue"},
		{"fix <id>", "Apply an automatic fix (linting issues)"},
		{"status", "Show tools, domains and cache size"},
		{"clear", "Clear the issue cache"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the REPL"},
	}

	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-20s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)

	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF // Signal to exit the loop
}
