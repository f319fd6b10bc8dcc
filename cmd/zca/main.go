// Command zca runs one zonal climate analysis of a polygon file against the
// DWD annual grids and writes charts, a map and the statistics table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/adapter/gdal"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/catalog"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/config"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/pipeline"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/raster"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/report"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/stats"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/vector"
)

func main() {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "zca",
		Short:        "Zonal climate statistics for German regions",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd())
	return root
}

type analyzeFlags struct {
	skipDownload bool
	lang         string
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <polygon-file>",
		Short: "Analyze one polygon file (shapefile with .prj)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("skip-download") {
				flags.skipDownload = cfg.SkipDownload
			}
			if !cmd.Flags().Changed("lang") {
				flags.lang = cfg.Lang
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAnalyze(ctx, cfg, args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.skipDownload, "skip-download", false, "use the rasters already on disk")
	cmd.Flags().StringVar(&flags.lang, "lang", "de", `caption language ("de" or "en")`)
	return cmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, input string, flags analyzeFlags) error {
	logger := observability.NewLogger(cfg)
	lang := config.NormalizeLang(flags.lang)

	proj, err := domain.LoadProjection(cfg.PrjFile)
	if err != nil {
		return err
	}

	gis := gdal.New(logger)
	p := pipeline.New(
		catalog.NewFetcher(cfg.DWDBaseURL, cfg.DownloadWorkers, logger),
		raster.NewNormalizer(logger),
		raster.NewPreparer(gis, proj, logger),
		vector.NewPreparer(gis, proj, cfg.ShapeDir, logger),
		stats.NewAggregator(gis, logger),
		pipeline.Dirs{Raster: cfg.RasterDir, DataInfo: cfg.DataInfoDir, Output: cfg.OutputDir},
		progressFor(os.Stderr),
		logger,
	)

	result, err := p.Run(ctx, pipeline.Request{Input: input, SkipDownload: flags.skipDownload})
	if err != nil {
		logger.Error("analysis failed", "input", input, "error", err)
		return err
	}

	written, err := report.NewReporter(gis, cfg.OutputDir, lang, logger).Render(result.Table, result.Region)
	if err != nil {
		logger.Error("report failed", "region", result.Region.Name(), "error", err)
		return err
	}
	for _, path := range written {
		fmt.Fprintln(os.Stdout, path)
	}
	return nil
}

// progressFor draws progress bars only when f is an interactive terminal, so
// the gateway's captured output stays free of control sequences.
func progressFor(f *os.File) pipeline.ProgressFactory {
	if term.IsTerminal(int(f.Fd())) {
		return pipeline.ProgressBars(f)
	}
	return pipeline.NoProgress
}

