// Package cli implements the goes-fetcher commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/goes-fetcher/internal/config"
	"github.com/withObsrvr/goes-fetcher/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	logFormat  string

	satellite  string
	product    string
	sector     string
	stagingDir string
	start      string
	end        string
}

// app is the state of one command invocation.
type app struct {
	flags globalFlags
	cfg   *config.Config
}

// NewRootCmd builds the goes-fetcher command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "goes-fetcher",
		Short: "Fetch GOES satellite products from the public object store",
		Long: `goes-fetcher lists, downloads and optionally transforms GOES ABI products
published in the noaa-goes buckets:
- plan/info: build the workplan and estimate its disk footprint
- download: fetch raw files into the staging directory
- process: transform files sequentially or in parallel worker cohorts`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "config file path")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&a.flags.satellite, "satellite", "", "satellite number (16, 17, 18)")
	pf.StringVar(&a.flags.product, "product", "", "product code without sector, e.g. ABI-L2-AOD")
	pf.StringVar(&a.flags.sector, "sector", "", "scan sector (C, F, M, M1, M2)")
	pf.StringVar(&a.flags.stagingDir, "staging-dir", "", "directory for raw files")
	pf.StringVar(&a.flags.start, "start", "", "window start (RFC 3339 or 2006-01-02 15:04)")
	pf.StringVar(&a.flags.end, "end", "", "window end (RFC 3339 or 2006-01-02 15:04)")

	cmd.AddCommand(
		newPlanCmd(a),
		newInfoCmd(a),
		newDownloadCmd(a),
		newProcessCmd(a),
		newProductsCmd(a),
		newSinceCmd(a),
		newWorkerCmd(),
	)

	return cmd
}

// load reads configuration, applies flag overrides and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}

	f := a.flags
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Query.Satellite, f.satellite)
	override(&cfg.Query.Product, f.product)
	override(&cfg.Query.Sector, f.sector)
	override(&cfg.Query.StagingDir, f.stagingDir)
	override(&cfg.Logging.Format, f.logFormat)
	if f.start != "" {
		if cfg.Query.Start, err = config.ParseTime(f.start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if f.end != "" {
		if cfg.Query.End, err = config.ParseTime(f.end); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}
	if f.verbose {
		cfg.Query.Verbose = true
	}
	if cfg.Query.Verbose {
		cfg.Logging.Level = "debug"
	}

	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		Output: os.Stderr,
	})

	a.cfg = cfg
	return nil
}
