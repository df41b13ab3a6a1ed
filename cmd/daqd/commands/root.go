// Package commands implements daqd's cobra subcommands: serve (run the
// daemon loop), validate (check CUE configuration sources), queue (admit
// and run a plan against a freshly built in-process daemon), and status
// (report the engine's current state after a queue run). There is no
// RPC client here: spec.md §1 scopes the gRPC/wire surface out of this
// module's core, so queue/status operate against a daemon instance this
// process itself builds rather than one reachable over the network.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "daqd",
		Short: "daqd - scientific instrument data-acquisition daemon",
		Long: `daqd fronts a heterogeneous collection of laboratory hardware behind a
uniform capability-typed interface, runs declarative acquisition plans
that coordinate motion and detection, and persists the resulting
document stream to an analysis-friendly archive.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "CUE configuration source (file or directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newQueueCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}
