// Package debug hosts the optional eino visual debug server.
package debug

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
)

type EinoDebugger struct {
	enabled bool
	port    int
	log     zerolog.Logger
	// init is swapped in tests so the server is never started.
	init func(ctx context.Context, port string) error
}

func NewEinoDebugger(cfg *config.Config, log zerolog.Logger) *EinoDebugger {
	return &EinoDebugger{
		enabled: cfg.EinoDebugEnabled,
		port:    cfg.EinoDebugPort,
		log:     log.With().Str("component", "eino_debug").Logger(),
		init: func(ctx context.Context, port string) error {
			return devops.Init(ctx, devops.WithDevServerPort(port))
		},
	}
}

// Initialize starts the devops server when enabled. It is a no-op otherwise.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.enabled {
		return nil
	}
	d.log.Debug().Int("port", d.port).Msg("initializing eino visual debug plugin")
	// graphs compiled after this point are listed by the server
	if err := d.init(ctx, strconv.Itoa(d.port)); err != nil {
		return fmt.Errorf("initialize eino debug plugin: %w", err)
	}
	d.log.Info().Str("url", d.GetDebugURL()).Msg("eino debug server ready")
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.enabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.enabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.port)
}
