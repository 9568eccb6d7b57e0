// Package cli implements the ard command.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	ard "github.com/fishmip/ard-go"
	"github.com/fishmip/ard-go/boundary"
	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/internal/config"
	"github.com/fishmip/ard-go/netcdf"
	"github.com/fishmip/ard-go/telemetry"
	"github.com/fishmip/ard-go/zarr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

type app struct {
	configFile  string
	logLevel    string
	logJSON     bool
	metricsFile string

	cfg     config.Config
	log     *logrus.Logger
	metrics *telemetry.Metrics
}

// NewRootCommand builds the ard command tree
func NewRootCommand() *cobra.Command {
	a := &app{log: logrus.New()}
	root := &cobra.Command{
		Use:   "ard",
		Short: "Convert ocean climatologies into analysis-ready data.",
		Long: `ard consolidates gridded netCDF downloads into chunked Zarr stores, masks
them to regional model areas and exports the result as Zarr or Parquet.

Settings come from an optional YAML job file (--config), overridden by
environment variables of the form ARD__KEY or ARD__SECTION__KEY, then by
command-line flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.cfg.MetricsFile == "" {
				return nil
			}
			return a.metrics.WriteTextfile(a.cfg.MetricsFile)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "job file location")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&a.logJSON, "log-json", false, "log JSON lines")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write job counters to this Prometheus textfile")

	root.AddCommand(
		a.consolidateCmd(),
		a.maskCmd(),
		a.runCmd(),
		a.inspectCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = a.logJSON
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.metricsFile
	}
	a.cfg = cfg

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log.SetLevel(level)
	a.log.SetOutput(cmd.ErrOrStderr())
	if cfg.LogJSON {
		a.log.SetFormatter(&logrus.JSONFormatter{})
	}
	a.metrics = telemetry.New()
	return nil
}

func (a *app) options() ([]ard.Option, error) {
	opts, err := a.cfg.Options()
	if err != nil {
		return nil, err
	}
	return append(opts, ard.WithLogger(a.log), ard.WithMetrics(a.metrics)), nil
}

func (a *app) consolidateCmd() *cobra.Command {
	var variable, out string
	cmd := &cobra.Command{
		Use:   "consolidate FILE...",
		Short: "Merge netCDF files into a consolidated Zarr store",
		Long: `consolidate merges one variable of monthly or annual netCDF files into a
single chunked Zarr store. Arguments may be glob patterns.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.consolidate(cmd.Context(), config.ConsolidateJob{Files: args, Variable: variable, Out: out})
		},
	}
	cmd.Flags().StringVar(&variable, "var", "", "variable to keep")
	cmd.Flags().StringVar(&out, "out", "", "output store path or bucket URL")
	cmd.MarkFlagRequired("var")
	cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) maskCmd() *cobra.Command {
	job := config.MaskJob{MaskVariable: "mask"}
	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Extract and clip a region of a consolidated store",
		Long: `mask keeps the cells of a consolidated store where a 0/1 mask grid is 1,
clips them to a boundary shapefile and writes them to a path ending in zarr
or parquet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mask(cmd.Context(), job)
		},
	}
	f := cmd.Flags()
	f.StringVar(&job.Store, "store", "", "consolidated store")
	f.StringVar(&job.Mask, "mask", "", "mask grid, a Zarr store or netCDF file")
	f.StringVar(&job.MaskVariable, "mask-var", job.MaskVariable, "mask variable of a netCDF mask")
	f.StringVar(&job.Boundary, "boundary", "", "boundary shapefile")
	f.StringVar(&job.Out, "out", "", "output path ending in zarr or parquet")
	for _, name := range []string{"store", "mask", "boundary", "out"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every job of a job file",
		Long: `run runs the consolidate jobs of the --config job file, then its mask
jobs, stopping at the first failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.configFile == "" {
				return fmt.Errorf("run needs a job file (--config)")
			}
			for _, job := range a.cfg.Consolidate {
				if err := a.consolidate(cmd.Context(), job); err != nil {
					return err
				}
			}
			for _, job := range a.cfg.Mask {
				if err := a.mask(cmd.Context(), job); err != nil {
					return err
				}
			}
			a.log.WithFields(logrus.Fields{"consolidate": len(a.cfg.Consolidate), "mask": len(a.cfg.Mask)}).Info("jobs done")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ard %s\n", Version)
		},
	}
}

func (a *app) consolidate(ctx context.Context, job config.ConsolidateJob) error {
	files, err := expandFiles(job.Files)
	if err != nil {
		return err
	}
	opts, err := a.options()
	if err != nil {
		return err
	}
	return ard.Consolidate(ctx, files, job.Variable, job.Out, opts...)
}

func (a *app) mask(ctx context.Context, job config.MaskJob) error {
	target, err := ard.ParseTarget(job.Out)
	if err != nil {
		return err
	}
	opts, err := a.options()
	if err != nil {
		return err
	}
	m, err := loadMask(ctx, job.Mask, job.MaskVariable)
	if err != nil {
		return fmt.Errorf("loading mask %s: %w", job.Mask, err)
	}
	b, err := boundary.Load(job.Boundary)
	if err != nil {
		return err
	}
	region, err := ard.ExtractRegion(ctx, job.Store, m, opts...)
	if err != nil {
		return err
	}
	return ard.ClipExport(ctx, region, b, target, opts...)
}

// loadMask reads a mask grid from a netCDF file or a Zarr store
func loadMask(ctx context.Context, path, variable string) (*grid.DataArray, error) {
	if strings.HasSuffix(strings.ToLower(path), ".nc") {
		return netcdf.ReadVariable(path, variable)
	}
	store, err := zarr.OpenStore(ctx, path, zarr.ModeRead)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return zarr.ReadDataArray(store)
}

// expandFiles expands glob patterns, keeping plain paths as given
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[") {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: nothing matches %s", ard.ErrNoInputFiles, p)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, ard.ErrNoInputFiles
	}
	return files, nil
}
