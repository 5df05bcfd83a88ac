package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/fetcher"
)

func newDownloadCmd(a *app) *cobra.Command {
	var (
		opts     fetcher.DownloadOptions
		planPath string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the workplan's raw files into the staging directory",
		Long: `Fetch every workplan entry in timestamp order.

The download is refused when the projected volume usage exceeds 90%
unless --ignore-low-disk-space is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.openFetcher(cmd.Context(), sessionOptions{planPath: planPath})
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := f.Download(cmd.Context(), opts)
			var lowDisk *fetcher.LowDiskSpaceError
			if errors.As(err, &lowDisk) {
				return fmt.Errorf("%w (rerun with --ignore-low-disk-space to proceed)", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d files (%s), skipped %d\n",
				report.Fetched, humanize.Bytes(uint64(report.Bytes)), report.Skipped)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&opts.Overwrite, "overwrite", false, "fetch files that already exist locally")
	fl.BoolVar(&opts.StopAfterFirst, "first", false, "stop after the first transferred file")
	fl.BoolVar(&opts.IgnoreLowDiskSpace, "ignore-low-disk-space", false, "skip the disk usage guard")
	fl.StringVar(&planPath, "plan", "", "use a saved workplan")
	return cmd
}
