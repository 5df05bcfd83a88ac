package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/fetcher"
)

func newProcessCmd(a *app) *cobra.Command {
	var (
		parallel bool
		workers  int
		raise    bool
		planPath string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Transform the workplan's files",
		Long: `Transform every workplan entry, fetching raw files that are missing.

Without --parallel entries run one after another in this process. With
--parallel the plan is split into worker chunks that advance in lockstep
cohorts, each entry in its own isolated worker.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Execution.Workers
			}
			if !cmd.Flags().Changed("raise") {
				raise = cfg.Execution.RaiseOnTransformError
			}

			f, err := a.openFetcher(cmd.Context(), sessionOptions{planPath: planPath})
			if err != nil {
				return err
			}
			defer f.Close()

			w := cmd.OutOrStdout()
			if !parallel {
				report, err := f.Process(cmd.Context(), fetcher.ProcessOptions{RaiseOnTransformError: raise})
				fmt.Fprintf(w, "processed %d, skipped %d, transform failures %d, fetch failures %d\n",
					report.Processed, report.Skipped, report.TransformFailures, report.FetchFailures)
				return err
			}

			report, err := f.ProcessParallel(cmd.Context(), fetcher.ParallelOptions{
				Transform:             cfg.Processing.Transform,
				Args:                  cfg.Processing.Args,
				Workers:               workers,
				RaiseOnTransformError: raise,
				LogPath:               cfg.Execution.RunLog,
				Label:                 cfg.Execution.Label,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d cohorts: %d succeeded, %d warnings, %d errors\n",
				len(report.Cohorts), report.Successes, report.Warnings, report.Errors)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.BoolVarP(&parallel, "parallel", "p", false, "run entries in parallel worker cohorts")
	fl.IntVarP(&workers, "workers", "w", 3, "number of parallel workers")
	fl.BoolVar(&raise, "raise", false, "stop on the first transform failure")
	fl.StringVar(&planPath, "plan", "", "use a saved workplan")
	return cmd
}
