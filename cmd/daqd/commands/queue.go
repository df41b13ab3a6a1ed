package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/photonlab/daqd/pkg/daemon"
	"github.com/photonlab/daqd/pkg/daqconfig"
	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/telemetry"
)

func newQueueCommand() *cobra.Command {
	var (
		params  []string
		mapping []string
		start   bool
	)

	cmd := &cobra.Command{
		Use:   "queue <plan-type>",
		Short: "Build a daemon from --config, admit a plan, and (optionally) run it to completion",
		Long: `queue builds the full registry/engine/archive stack from --config, admits
one plan by type tag, and either leaves it queued or runs the engine to
completion, printing every document the run emits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("queue: --config is required")
			}
			tag := args[0]

			parser := daqconfig.NewParser()
			parsed, err := parser.Parse(cmd.Context(), []string{configPath})
			if err != nil {
				return fmt.Errorf("queue: parse config: %w", err)
			}
			if !parsed.OK() {
				return fmt.Errorf("queue: %d configuration error(s), run 'daqd validate' for details", len(parsed.Errors))
			}

			tcfg := telemetry.DefaultConfig()
			tcfg.Metrics.Enabled = false
			tcfg.Tracing.Enabled = false
			if verbose {
				tcfg.Logging.Level = "debug"
			}
			logger := telemetry.NewLogger(tcfg.Logging)

			d, err := daemon.Build(cmd.Context(), parsed.Daemon, parsed.Fleet, *tcfg, logger)
			if err != nil {
				return fmt.Errorf("queue: build daemon: %w", err)
			}
			defer d.Shutdown(cmd.Context())

			runUID, err := d.Service.Plan.QueuePlan(cmd.Context(), tag,
				toMap(params), toMap(mapping), nil)
			if err != nil {
				return fmt.Errorf("queue: %w", err)
			}
			fmt.Printf("queued run %s (%s)\n", runUID, tag)

			if !start {
				return nil
			}

			ch, cancel, err := d.Service.Plan.StreamDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue: stream documents: %w", err)
			}
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				for doc := range ch {
					fmt.Printf("%s\n", doc.Kind)
					if doc.Kind == document.KindStop {
						return
					}
				}
			}()

			if err := d.Service.Plan.StartEngine(cmd.Context()); err != nil {
				return fmt.Errorf("queue: start engine: %w", err)
			}

			select {
			case <-done:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params, "param", nil, "plan parameter as key=value, repeatable")
	cmd.Flags().StringSliceVar(&mapping, "device", nil, "device role mapping as role=device_id, repeatable")
	cmd.Flags().BoolVar(&start, "start", false, "start the engine immediately and wait for the run to finish")

	return cmd
}

// toMap parses a repeated --flag key=value slice into a map, skipping
// malformed entries rather than failing the whole command.
func toMap(kv []string) map[string]string {
	out := make(map[string]string, len(kv))
	for _, pair := range kv {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			log.Warn().Str("pair", pair).Msg("ignoring malformed key=value argument")
			continue
		}
		out[k] = v
	}
	return out
}
