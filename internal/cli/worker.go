package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/worker"
)

// newWorkerCmd is the entry point of parallel worker processes. It reads one
// job from stdin and exits with its status code.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one workplan entry read from stdin",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			os.Exit(worker.Main(cmd.Context(), cmd.InOrStdin()))
			return nil
		},
	}
}
