package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/photonlab/daqd/pkg/daqconfig"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate CUE configuration sources",
		Long: `Parses and validates the daemon's CUE configuration: device-fleet
declarations and daemon-level settings, checked against the struct-tag
validators.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				path = "."
			}

			log.Info().Str("path", path).Msg("validating configuration")

			parser := daqconfig.NewParser()
			parsed, err := parser.Parse(cmd.Context(), []string{path})
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			if parsed.OK() {
				fmt.Printf("configuration valid: %d source file(s), %d device(s)\n",
					len(parsed.SourceFiles), len(parsed.Fleet.Devices))
				return nil
			}

			for _, e := range parsed.Errors {
				fmt.Printf("%s [%s]: %s (%s:%d:%d)\n", e.Severity, e.Path, e.Message, e.File, e.Line, e.Column)
			}
			return fmt.Errorf("validate: %d error(s) found", len(parsed.Errors))
		},
	}
	return cmd
}
