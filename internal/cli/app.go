package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/debug"
	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/internal/logging"
	"github.com/dyike/CortexDesk/internal/storage"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
)

// app carries the global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	logLevel   string
	pretty     bool
	debug      bool
	einoDebug  bool

	out    io.Writer
	errOut io.Writer
	mgr    *config.Manager
	log    zerolog.Logger
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	mgr, err := config.NewManager(
		config.WithConfigPath(a.configPath),
		config.WithInitialConfig(config.DefaultConfig()),
	)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.mgr = mgr

	cfg := mgr.Get()
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.debug || cfg.Debug {
		level = "debug"
	}
	a.log = logging.New(logging.Config{Level: level, Pretty: a.pretty, Output: a.errOut})
	return nil
}

// config returns the stored configuration with environment overrides and flags applied.
func (a *app) config() *config.Config {
	cfg := a.mgr.Get()
	cfg.ApplyEnv()
	if a.einoDebug {
		cfg.EinoDebugEnabled = true
	}
	if a.debug {
		cfg.Debug = true
	}
	return &cfg
}

// pipeline wires the trading graph with the progress printer and the run recorder.
// The returned cleanup flushes both and must be called once all runs are finished.
func (a *app) pipeline(ctx context.Context, cfg *config.Config) (*graph.TradingAgentsGraph, func(), error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, fmt.Errorf("failed to create directories: %w", err)
	}

	dbg := debug.NewEinoDebugger(cfg, a.log)
	if err := dbg.Initialize(ctx); err != nil {
		a.log.Warn().Err(err).Msg("eino debug disabled")
	} else if dbg.IsEnabled() {
		fmt.Fprintln(a.out, display.Muted("eino debug: "+dbg.GetDebugURL()))
	}

	lines := make(chan string, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range lines {
			fmt.Fprintln(a.out, display.Muted(line))
		}
	}()
	observers := []graph.Observer{&graph.LoggerCallback{Log: a.log, Out: lines}}

	var store *sqlite.Store
	var recorder *storage.RunRecorder
	if s, err := storage.OpenForConfig(cfg); err != nil {
		a.log.Warn().Err(err).Msg("run history disabled")
	} else {
		store = s
		recorder = storage.NewRunRecorder(store, a.log)
		observers = append(observers, recorder)
	}

	cleanup := func() {
		close(lines)
		<-printed
		if recorder != nil {
			recorder.Close()
		}
		if store != nil {
			_ = store.Close()
		}
	}

	g, err := graph.NewTradingAgentsGraph(ctx, cfg, a.log, graph.WithObserver(graph.Observers(observers...)))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return g, cleanup, nil
}
