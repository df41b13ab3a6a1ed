package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/photonlab/daqd/pkg/daemon"
	"github.com/photonlab/daqd/pkg/daqconfig"
	"github.com/photonlab/daqd/pkg/registry"
	"github.com/photonlab/daqd/pkg/telemetry"
)

const shutdownGrace = 10 * time.Second

func newServeCommand() *cobra.Command {
	var production bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: parse configuration, register the fleet, and block until signaled",
		Long: `serve loads the device fleet and daemon settings from --config, builds
the registry/engine/archive stack in spec.md §5's startup order, watches
the fleet source for hot-reloadable device additions, and runs until the
process receives SIGINT/SIGTERM, at which point it aborts any running
plan, stops recording, and flushes the archive one final time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("serve: --config is required")
			}

			parser := daqconfig.NewParser()
			parsed, err := parser.Parse(cmd.Context(), []string{configPath})
			if err != nil {
				return fmt.Errorf("serve: parse config: %w", err)
			}
			if !parsed.OK() {
				for _, e := range parsed.Errors {
					log.Error().Str("path", e.Path).Str("file", e.File).Msg(e.Message)
				}
				return fmt.Errorf("serve: %d configuration error(s)", len(parsed.Errors))
			}

			tcfg := telemetry.DefaultConfig()
			if production {
				tcfg = telemetry.ProductionConfig()
			}
			if verbose {
				tcfg.Logging.Level = "debug"
			}
			logger := telemetry.NewLogger(tcfg.Logging)

			d, err := daemon.Build(cmd.Context(), parsed.Daemon, parsed.Fleet, *tcfg, logger)
			if err != nil {
				return fmt.Errorf("serve: build daemon: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := d.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("daemon shutdown failed")
				}
			}()

			logger.Info().Int("devices", len(parsed.Fleet.Devices)).Msg("daemon ready")

			if tcfg.Metrics.Enabled {
				go func() {
					if err := d.Metrics.Serve(tcfg.Metrics.ListenAddress); err != nil {
						logger.Warn().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			watcher := daqconfig.NewWatcher(parser, logger)
			if err := watcher.Watch(cmd.Context(), configPath, func(fleet daqconfig.FleetConfig) error {
				return registerNewDevices(cmd.Context(), d, fleet)
			}); err != nil {
				logger.Warn().Err(err).Msg("config watch not installed; fleet changes require a restart")
			}

			<-cmd.Context().Done()
			logger.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&production, "production", false, "use JSON logging and OTLP trace export")
	return cmd
}

// registerNewDevices adds any device in fleet the registry doesn't
// already know about. Devices already registered are left untouched:
// spec.md §3 requires a device's capability set to be monotonic while
// live, so a config edit that changes an existing device's driver type
// is ignored (the device keeps its live registration) rather than
// replacing it.
func registerNewDevices(ctx context.Context, d *daemon.Daemon, fleet daqconfig.FleetConfig) error {
	for _, dc := range fleet.Devices {
		if d.Registry.Contains(registry.DeviceID(dc.ID)) {
			continue
		}
		if err := d.RegisterDevice(ctx, dc); err != nil {
			return fmt.Errorf("hot-reload device %q: %w", dc.ID, err)
		}
	}
	return nil
}
