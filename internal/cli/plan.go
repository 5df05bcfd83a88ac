package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/workplan"
)

func newPlanCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build the workplan for the configured query",
		Long: `Build the workplan and print one line per entry.

With --out the plan is saved instead; the format follows the extension:
.json, .json.zst or .parquet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.openFetcher(cmd.Context(), sessionOptions{})
			if err != nil {
				return err
			}
			defer f.Close()

			plan, err := f.Workplan(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				if err := workplan.Save(out, plan); err != nil {
					return err
				}
				fmt.Fprintf(w, "saved %d entries to %s\n", plan.Len(), out)
				return nil
			}
			for _, e := range plan.Entries {
				fmt.Fprintf(w, "%s  %s\n", e.Time.Format("2006-01-02T15:04:05Z"), e.RemoteKey)
			}
			fmt.Fprintf(w, "%d entries\n", plan.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "save the plan to a file")
	return cmd
}
