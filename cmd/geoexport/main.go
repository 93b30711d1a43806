// Package main provides the entry point for the geoexport tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/geoexport/internal/app"
	"github.com/jobrunner/geoexport/internal/application"
	"github.com/jobrunner/geoexport/internal/config"
	"github.com/jobrunner/geoexport/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geoexport",
	Short: "geoexport - size-aware raster export",
	Long: `geoexport downloads a multi-band raster of a region from a remote export
service that refuses requests above an undocumented size limit.

It negotiates the richest export the service will honor:
  - single: one file with a fixed band list, walking a resolution ladder
  - adaptive: band sets and resolutions ordered by estimated size
  - tiled: quadrant tiles when no full-region request succeeds

Artifacts are validated, digested and recorded in a SQLite catalog, and can be
published to a local directory, AWS S3 or Azure Blob Storage.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one export negotiation",
	RunE:  runExport,
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Print the candidate table without contacting the service",
	RunE:  runEstimate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the export API",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geoexport %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")

	// Export flags, shared by run, estimate and serve (as request defaults)
	pf.String("image", "", "image to export")
	pf.String("mode", "single", "export mode (single, adaptive)")
	pf.String("region", "", "GeoJSON region file")
	pf.String("bbox", "", "region bounding box minLon,minLat,maxLon,maxLat")
	pf.String("budget", "48MiB", "size budget per request")
	pf.Float64("tolerance", 1.2, "size budget tolerance")
	pf.String("output", "./output", "output directory")
	pf.Bool("force", false, "re-download files that already exist")

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	serveCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Publish flags
	pf.String("publish", "none", "publish target (none, local, s3, azure)")
	pf.String("publish-path", "", "local publish path")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = viper.BindPFlag("export.image", pf.Lookup("image"))
	_ = viper.BindPFlag("export.mode", pf.Lookup("mode"))
	_ = viper.BindPFlag("region.file", pf.Lookup("region"))
	_ = viper.BindPFlag("region.bbox", pf.Lookup("bbox"))
	_ = viper.BindPFlag("export.budget", pf.Lookup("budget"))
	_ = viper.BindPFlag("export.tolerance", pf.Lookup("tolerance"))
	_ = viper.BindPFlag("output.dir", pf.Lookup("output"))
	_ = viper.BindPFlag("output.force", pf.Lookup("force"))
	_ = viper.BindPFlag("publish.type", pf.Lookup("publish"))
	_ = viper.BindPFlag("publish.local_path", pf.Lookup("publish-path"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", serveCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", serveCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))

	rootCmd.AddCommand(runCmd, estimateCmd, serveCmd, versionCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig loads the configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	app.UserAgent = "geoexport/" + version

	return cfg, logger, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	job := a.DefaultJob()
	if err := checkJob(job); err != nil {
		return err
	}

	logger.Info("starting export",
		"version", version,
		"image", job.Image,
		"mode", job.Mode,
		"budget", domain.FormatEstimate(float64(job.Budget.MaxBytes)),
		"output", cfg.Output.Dir,
	)

	outcome, err := a.Export(ctx, job)
	if err != nil {
		var exhausted *domain.ExhaustionError
		if errors.As(err, &exhausted) {
			printAttempts(cmd.OutOrStdout(), exhausted.Attempts)
		}
		return err
	}

	printOutcome(cmd.OutOrStdout(), outcome)
	return nil
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	defaults, err := app.ExportDefaults(cfg)
	if err != nil {
		return err
	}
	if defaults.Region.IsZero() {
		return errors.New("a region file or bbox is required")
	}
	if err := defaults.Region.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if area, ok := defaults.Region.Area(); ok {
		fmt.Fprintf(out, "region area: %.2f km2\n", area/1e6)
	} else {
		fmt.Fprintln(out, "region area: unknown")
	}
	fmt.Fprintf(out, "budget: %s x %.2f\n\n", domain.FormatEstimate(float64(defaults.Budget.MaxBytes)), defaults.Budget.Tolerance)

	single := application.LadderCandidates(defaults.Region, domain.BandSet(cfg.Export.SingleBands), cfg.Export.ResolutionLadder())
	fmt.Fprintln(out, "single (ladder order):")
	printCandidates(out, single, defaults.Budget)

	adaptive := application.ExhaustiveCandidates(defaults.Region, cfg.Export.BandSetList(), cfg.Export.Resolutions, defaults.Budget)
	fmt.Fprintln(out, "\nadaptive (ascending estimate):")
	printCandidates(out, adaptive, defaults.Budget)

	return nil
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting geoexport",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"publish_type", cfg.Publish.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	geoApp, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	if err := geoApp.InitServer(); err != nil {
		_ = geoApp.Close()
		return err
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address(), "tls", cfg.TLS.Enabled)
		if err := geoApp.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := geoApp.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func checkJob(job application.ExportJob) error {
	if job.Image == "" {
		return errors.New("an image is required (--image or export.image)")
	}
	if job.Region.IsZero() {
		return errors.New("a region is required (--region, --bbox or region.*)")
	}
	return nil
}

func printOutcome(w io.Writer, o *domain.Outcome) {
	fmt.Fprintf(w, "strategy: %s (%d attempts, %s)\n", o.Strategy, len(o.Attempts), o.Duration.Round(time.Millisecond))
	for _, a := range o.Artifacts {
		fmt.Fprintf(w, "  %s  %s  %s\n", a.Path, domain.FormatEstimate(float64(a.Size)), a.Source)
	}
	if !o.Complete() {
		fmt.Fprintf(w, "incomplete: tiles %v failed\n", o.FailedTiles)
	}
}

func printAttempts(w io.Writer, attempts []domain.Attempt) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tTILE\tBANDS\tSCALE\tESTIMATE\tERROR")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%sm\t%s\t%v\n",
			a.Strategy,
			a.Tile,
			a.Candidate.Bands,
			domain.FormatResolution(a.Candidate.Resolution),
			domain.FormatEstimate(a.Candidate.EstimatedBytes),
			a.Err,
		)
	}
	_ = tw.Flush()
}

func printCandidates(w io.Writer, candidates []domain.Candidate, budget domain.SizeBudget) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BANDS\tSCALE\tESTIMATE\tFITS")
	for _, c := range candidates {
		fits := "yes"
		switch {
		case c.Fallback:
			fits = "fallback"
		case !budget.Admits(c.EstimatedBytes):
			fits = "no"
		}
		fmt.Fprintf(tw, "%s\t%sm\t%s\t%s\n", c.Bands, domain.FormatResolution(c.Resolution), domain.FormatEstimate(c.EstimatedBytes), fits)
	}
	_ = tw.Flush()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	// Logs go to stderr so that command output stays parseable.
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
