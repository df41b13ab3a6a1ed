package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/photonlab/daqd/pkg/daemon"
	"github.com/photonlab/daqd/pkg/daqconfig"
	"github.com/photonlab/daqd/pkg/telemetry"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Build a daemon from --config and report its (freshly started, idle) engine and fleet state",
		Long: `status builds the daemon stack from --config and reports its engine
state and registered device list. Since this process builds its own
in-memory daemon rather than reaching one over the network (spec.md §1
scopes the wire surface out of this module), the report always shows an
Idle engine with no run history; use 'queue --start' to exercise the
full plan lifecycle in one process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("status: --config is required")
			}

			parser := daqconfig.NewParser()
			parsed, err := parser.Parse(cmd.Context(), []string{configPath})
			if err != nil {
				return fmt.Errorf("status: parse config: %w", err)
			}
			if !parsed.OK() {
				return fmt.Errorf("status: %d configuration error(s)", len(parsed.Errors))
			}

			tcfg := telemetry.DefaultConfig()
			tcfg.Metrics.Enabled = false
			tcfg.Tracing.Enabled = false
			logger := telemetry.NewLogger(tcfg.Logging)

			d, err := daemon.Build(cmd.Context(), parsed.Daemon, parsed.Fleet, *tcfg, logger)
			if err != nil {
				return fmt.Errorf("status: build daemon: %w", err)
			}
			defer d.Shutdown(cmd.Context())

			status := d.Engine.GetEngineStatus()
			fmt.Printf("engine state: %s\n", status.State)
			fmt.Printf("queued plans: %d\n", len(status.Queued))
			if status.LastError != "" {
				fmt.Printf("last error: %s\n", status.LastError)
			}

			fmt.Println("devices:")
			for _, info := range d.Registry.List() {
				fmt.Printf("  %s\t%s\t%s\t%v\n", info.ID, info.Name, info.DriverType, info.Capabilities)
			}

			fmt.Printf("plan types: %v\n", d.Service.Plan.ListPlanTypes(cmd.Context()))

			return nil
		},
	}
	return cmd
}
