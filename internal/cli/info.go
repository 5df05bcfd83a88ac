package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/products"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the pending download",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.openFetcher(cmd.Context(), sessionOptions{})
			if err != nil {
				return err
			}
			defer f.Close()

			summary, err := f.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newSinceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "since",
		Short: "Print the first day the configured product has data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.openFetcher(cmd.Context(), sessionOptions{windowless: true})
			if err != nil {
				return err
			}
			defer f.Close()

			day, err := f.ProductAvailableSince(cmd.Context())
			if err != nil {
				return err
			}
			q := f.Query()
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s on GOES-%s available since %s\n",
				q.Product, q.Sector, q.Satellite, day.Format("2006-01-02"))
			return nil
		},
	}
}

func newProductsCmd(a *app) *cobra.Command {
	var satellites []string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the product folders of each satellite bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer catalog.Close()

			avail, err := products.Available(cmd.Context(), catalog, satellites)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, sat := range avail.Satellites {
				fmt.Fprintf(w, "GOES-%s\n", sat)
				for _, folder := range avail.Folders[sat] {
					name, _ := products.Name(folder)
					fmt.Fprintf(w, "  %-20s %s\n", folder, name)
				}
			}
			if len(avail.Satellites) > 1 {
				if avail.Identical {
					fmt.Fprintln(w, "product listings are identical")
				} else {
					fmt.Fprintln(w, "product listings are NOT identical")
				}
			}
			fmt.Fprintf(w, "readme: %s\n", products.ReadmeURL)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&satellites, "satellites", []string{"16", "17"}, "satellites to compare")
	return cmd
}
