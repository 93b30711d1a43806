// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jobrunner/geoexport/internal/adapters/artifact"
	"github.com/jobrunner/geoexport/internal/adapters/catalog"
	httpAdapter "github.com/jobrunner/geoexport/internal/adapters/http"
	"github.com/jobrunner/geoexport/internal/adapters/metrics"
	"github.com/jobrunner/geoexport/internal/adapters/region"
	"github.com/jobrunner/geoexport/internal/adapters/remote"
	"github.com/jobrunner/geoexport/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/geoexport/internal/adapters/tls"
	"github.com/jobrunner/geoexport/internal/adapters/watcher"
	"github.com/jobrunner/geoexport/internal/application"
	"github.com/jobrunner/geoexport/internal/config"
	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

// UserAgent is sent to the remote service and on locator downloads.
var UserAgent = "geoexport"

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Metrics       *metrics.Collector
	Catalog       *catalog.Catalog
	Storage       output.ObjectStorage
	Store         *artifact.Store
	Publisher     *application.ArtifactPublisher
	Negotiator    *application.Negotiator
	ExportService *application.ExportService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Defaults      httpAdapter.ExportDefaults
}

// New creates and initializes a new application. The servers and the
// watcher are created but not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	defaults, err := ExportDefaults(cfg)
	if err != nil {
		return nil, err
	}
	app.Defaults = defaults

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geoexport")
		metricsCollector = app.Metrics
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	// Initialize artifact store
	fetcher := storage.NewHTTPFetcher(storage.HTTPConfig{
		Timeout:   cfg.Output.TransferTimeout,
		UserAgent: UserAgent,
	})
	app.Store = artifact.NewStore(fetcher, metricsCollector, logger, artifact.Config{
		Dir:         cfg.Output.Dir,
		Extension:   cfg.Export.Extension,
		Force:       cfg.Output.Force,
		KeepArchive: cfg.Output.KeepArchive,
	})

	client := remote.NewClient(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Token:     cfg.Remote.Token,
		Timeout:   cfg.Remote.Timeout,
		UserAgent: UserAgent,
	})

	// Initialize catalog
	var artifactCatalog output.ArtifactCatalog
	if cfg.Catalog.Enabled {
		cat, err := catalog.Open(ctx, cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("opening catalog: %w", err)
		}
		app.Catalog = cat
		artifactCatalog = cat
	}

	// Initialize publish target
	store, err := initStorage(ctx, cfg.Publish)
	if err != nil {
		app.closeCatalog()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	app.Publisher = application.NewArtifactPublisher(artifactCatalog, app.Storage, metricsCollector, logger)

	app.Negotiator = application.NewNegotiator(
		client,
		app.Store,
		app.Publisher,
		metricsCollector,
		logger,
		application.NegotiatorConfig{
			Prefix:        cfg.Export.Prefix,
			Extension:     cfg.Export.Extension,
			SingleBands:   domain.BandSet(cfg.Export.SingleBands),
			Ladder:        cfg.Export.ResolutionLadder(),
			BandSets:      cfg.Export.BandSetList(),
			Resolutions:   cfg.Export.Resolutions,
			FailOnUnknown: cfg.Export.FailOnUnknown,
		},
	)

	// Sync prunes the catalog and uploads missing objects; with neither
	// there is nothing to schedule.
	syncInterval := cfg.Publish.SyncInterval
	if app.Storage == nil && app.Catalog == nil {
		syncInterval = 0
	}
	app.ExportService = application.NewExportService(app.Negotiator, app.Publisher, syncInterval, logger)
	app.HealthService = application.NewHealthService(app.ExportService, app.Publisher)

	return app, nil
}

// InitServer creates the HTTP server, the TLS server if enabled and the
// output directory watcher.
func (a *App) InitServer() error {
	var exporter httpAdapter.MetricsExporter
	if a.Metrics != nil {
		exporter = a.Metrics
	}

	a.HTTPServer = httpAdapter.NewServer(
		a.Config.Server,
		a.ExportService,
		a.Publisher,
		a.HealthService,
		exporter,
		a.Defaults,
		a.Logger,
	)

	cfg := a.Config
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			},
			a.HTTPServer.Router(),
			a.Logger,
		)
		if err != nil {
			return fmt.Errorf("initializing TLS: %w", err)
		}
		a.TLSServer = tlsServer
	}

	// Deleted artifacts only matter while there is a catalog to prune.
	if a.Catalog != nil {
		w, err := watcher.New(
			watcher.Config{
				Dir:       cfg.Output.Dir,
				Extension: cfg.Export.Extension,
			},
			a.handleFileEvent,
			a.Logger,
		)
		if err != nil {
			a.Logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			a.Watcher = w
		}
	}

	return nil
}

// Export runs one negotiation.
func (a *App) Export(ctx context.Context, job application.ExportJob) (*domain.Outcome, error) {
	return a.ExportService.Export(ctx, job)
}

// Start starts the background components and blocks serving HTTP(S).
// InitServer must have been called.
func (a *App) Start(ctx context.Context) error {
	if a.HTTPServer == nil {
		return errors.New("server not initialized")
	}

	a.ExportService.Start(ctx)

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTPS server shutdown error", "error", err)
		}
	}
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	return a.Close()
}

// Close stops the sync scheduler, writes the metrics textfile if one is
// configured and closes the catalog.
func (a *App) Close() error {
	a.ExportService.Stop()

	var errs []error
	if a.Metrics != nil && a.Config.Metrics.Textfile != "" {
		if err := a.Metrics.WriteTextfile(a.Config.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics textfile: %w", err))
		}
	}
	if a.Catalog != nil {
		if err := a.Catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
		a.Catalog = nil
	}
	return errors.Join(errs...)
}

func (a *App) closeCatalog() {
	if a.Catalog != nil {
		_ = a.Catalog.Close()
		a.Catalog = nil
	}
}

// handleFileEvent drops artifacts deleted from the output directory from
// the catalog.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Debug("file event", "path", event.Path, "operation", event.Operation.String())

	if event.Operation != watcher.OpDelete {
		return nil
	}
	return a.Publisher.Forget(ctx, event.Name)
}

// ExportDefaults derives the job defaults from the configuration. Image and
// region may be empty.
func ExportDefaults(cfg *config.Config) (httpAdapter.ExportDefaults, error) {
	budget, err := cfg.Export.SizeBudget()
	if err != nil {
		return httpAdapter.ExportDefaults{}, err
	}

	defaults := httpAdapter.ExportDefaults{
		Mode:   domain.ExportMode(cfg.Export.Mode),
		Image:  domain.ImageRef(cfg.Export.Image),
		Budget: budget,
	}

	switch {
	case cfg.Region.File != "":
		defaults.Region, err = region.LoadFile(cfg.Region.File)
		if err != nil {
			return defaults, fmt.Errorf("loading region: %w", err)
		}
	case cfg.Region.BBox != "":
		defaults.Region, err = region.ParseBBox(cfg.Region.BBox)
		if err != nil {
			return defaults, fmt.Errorf("parsing region bbox: %w", err)
		}
	}

	return defaults, nil
}

// DefaultJob returns a job built from the configured defaults.
func (a *App) DefaultJob() application.ExportJob {
	return application.ExportJob{
		Mode:   a.Defaults.Mode,
		Image:  a.Defaults.Image,
		Region: a.Defaults.Region,
		Budget: a.Defaults.Budget,
	}
}

// initStorage initializes the publish target. It returns nil for "none".
func initStorage(ctx context.Context, cfg config.PublishConfig) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Type) {
	case "", output.StorageTypeNone:
		return nil, nil

	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown publish type: %s", cfg.Type)
	}
}
