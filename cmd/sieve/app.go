package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/steveyegge/sieve/internal/ai"
	"github.com/steveyegge/sieve/internal/control"
	"github.com/steveyegge/sieve/internal/eventbus"
	"github.com/steveyegge/sieve/internal/history"
	"github.com/steveyegge/sieve/internal/orchestrator"
	"github.com/steveyegge/sieve/internal/plugins"
	"github.com/steveyegge/sieve/internal/plugins/builtin"
	"github.com/steveyegge/sieve/internal/plugins/coverage"
)

// app bundles the executor with the optional sinks wired to it.
type app struct {
	exec      *orchestrator.Executor
	history   *history.Store
	publisher *eventbus.Publisher
}

// newApp builds an executor for the project. Completed scans are recorded
// under source; publish enables NATS events when configured.
func newApp(source string, publish bool) (*app, error) {
	registry := plugins.NewRegistry()
	err := builtin.RegisterAll(registry, builtin.Options{
		Options: plugins.Options{
			ProjectRoot: projectRoot,
			Timeout:     settings.ToolTimeout,
			Logger:      log,
		},
		Coverage: coverage.SeverityPolicy{
			HighBelow: settings.Coverage.HighBelow,
			MediumGap: settings.Coverage.MediumGap,
		},
		Images:   settings.Container.Images,
		Disabled: settings.DisabledTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register plugins: %w", err)
	}

	a := &app{}
	cfg := &orchestrator.Config{
		ProjectRoot: projectRoot,
		Settings:    settings,
		Registry:    registry,
		Logger:      log,
	}

	if settings.History.Enabled {
		store, err := history.Open(settings.HistoryPath(projectRoot), log)
		if err != nil {
			// history is best effort
			log.Warnw("scan history disabled", "error", err)
		} else {
			a.history = store
			cfg.Listeners = append(cfg.Listeners, store.Listener(source))
		}
	}

	if publish && settings.Events.NatsURL != "" {
		pub, err := eventbus.NewPublisher(settings.Events.NatsURL, settings.Events.Subject, projectRoot, log)
		if err != nil {
			log.Warnw("scan events disabled", "error", err)
		} else {
			a.publisher = pub
			cfg.Listeners = append(cfg.Listeners, pub.Listener(source))
		}
	}

	if settings.Advisor.Enabled {
		advisor, err := ai.NewAdvisor(&ai.Config{
			Model:       settings.Advisor.Model,
			ProjectRoot: projectRoot,
			Logger:      log,
		})
		if err != nil {
			log.Warnw("fix advisor disabled", "error", err)
		} else {
			cfg.Advisor = advisor
		}
	}

	exec, err := orchestrator.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.exec = exec
	return a, nil
}

// Close releases the history database and NATS connection.
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warnw("failed to close history database", "error", err)
		}
	}
}

// serverClient returns a client for a running `sieve serve`, or nil.
func serverClient() *control.Client {
	client := control.NewClient(settings.SocketPath(projectRoot))
	if !client.Available() {
		return nil
	}
	return client
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitFor maps a scan outcome onto the process exit code.
func exitFor(r *orchestrator.ScanResult) int {
	switch {
	case r.Error != "":
		return exitError
	case r.Blocking:
		return exitBlocking
	default:
		return 0
	}
}
