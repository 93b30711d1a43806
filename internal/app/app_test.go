package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/geoexport/internal/adapters/watcher"
	"github.com/jobrunner/geoexport/internal/config"
	"github.com/jobrunner/geoexport/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Export: config.ExportConfig{
			Image:       "LANDSAT/LC09/C02/T1_L2/LC09_191035_20240612",
			Mode:        "single",
			Prefix:      "landsat_stack",
			Extension:   ".tif",
			SingleBands: []string{"SR_B4", "NDVI"},
			Ladder:      config.LadderConfig{Target: 120, Finer: []float64{90}, Coarser: []float64{150}},
			BandSets:    [][]string{{"NDVI"}},
			Resolutions: []float64{60, 120},
			Budget:      "48MiB",
			Tolerance:   1.2,
		},
		Output:  config.OutputConfig{Dir: filepath.Join(dir, "out"), TransferTimeout: time.Minute},
		Region:  config.RegionConfig{BBox: "10.0,36.6,10.4,37.0"},
		Catalog: config.CatalogConfig{Enabled: true, Path: filepath.Join(dir, "catalog.db")},
		Publish: config.PublishConfig{Type: "none", SyncInterval: time.Hour},
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Metrics: config.MetricsConfig{Enabled: true, Textfile: filepath.Join(dir, "geoexport.prom")},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExportDefaults(t *testing.T) {
	cfg := testConfig(t)

	defaults, err := ExportDefaults(cfg)
	if err != nil {
		t.Fatalf("ExportDefaults() error = %v", err)
	}
	if defaults.Mode != domain.ModeSingle || defaults.Image == "" {
		t.Errorf("defaults = %+v", defaults)
	}
	if defaults.Region.IsZero() {
		t.Error("region should come from the bbox")
	}
	if defaults.Budget.MaxBytes != 48<<20 {
		t.Errorf("MaxBytes = %d", defaults.Budget.MaxBytes)
	}

	cfg.Region = config.RegionConfig{File: filepath.Join(t.TempDir(), "missing.geojson")}
	if _, err := ExportDefaults(cfg); err == nil {
		t.Error("missing region file should fail")
	}

	cfg.Region = config.RegionConfig{}
	defaults, err = ExportDefaults(cfg)
	if err != nil || !defaults.Region.IsZero() {
		t.Errorf("no region configured: %+v, %v", defaults.Region, err)
	}
}

func TestNewAndClose(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Catalog == nil || a.Metrics == nil || a.Storage != nil {
		t.Errorf("components: catalog=%v metrics=%v storage=%v", a.Catalog, a.Metrics, a.Storage)
	}
	if _, err := os.Stat(cfg.Output.Dir); err != nil {
		t.Errorf("output directory not created: %v", err)
	}

	if err := a.InitServer(); err != nil {
		t.Fatalf("InitServer() error = %v", err)
	}
	if a.HTTPServer == nil || a.Watcher == nil || a.TLSServer != nil {
		t.Errorf("server components: http=%v watcher=%v tls=%v", a.HTTPServer, a.Watcher, a.TLSServer)
	}
	_ = a.Watcher.Stop()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(cfg.Metrics.Textfile); err != nil {
		t.Errorf("metrics textfile not written: %v", err)
	}
}

func TestNewUnknownPublishType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Publish.Type = "ftp"

	if _, err := New(context.Background(), cfg, testLogger()); err == nil {
		t.Error("New() should fail for an unknown publish type")
	}
}

func TestHandleFileEventForgetsDeletedArtifacts(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	name := "landsat_stack_single_s120m_SR_B4_NDVI.tif"
	rec := domain.ArtifactRecord{
		Artifact: domain.Artifact{
			Name:   name,
			Path:   filepath.Join(cfg.Output.Dir, name),
			Size:   4,
			Digest: "00",
			Source: domain.SourceDirect,
		},
		Image:      domain.ImageRef(cfg.Export.Image),
		Mode:       domain.ModeSingle,
		Resolution: 120,
		Bands:      domain.BandSet{"SR_B4", "NDVI"},
	}
	if err := a.Catalog.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Non-delete events leave the catalog alone.
	if err := a.handleFileEvent(ctx, watcher.Event{Name: name, Operation: watcher.OpModify}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if _, err := a.Publisher.GetArtifact(ctx, name); err != nil {
		t.Fatalf("artifact should still be recorded: %v", err)
	}

	if err := a.handleFileEvent(ctx, watcher.Event{Name: name, Operation: watcher.OpDelete}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.Publisher.GetArtifact(ctx, name); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Errorf("GetArtifact() error = %v, want ErrArtifactNotFound", err)
	}

	// Unknown names are not an error.
	if err := a.handleFileEvent(ctx, watcher.Event{Name: "other.tif", Operation: watcher.OpDelete}); err != nil {
		t.Errorf("unknown delete: %v", err)
	}
}

func TestStartRequiresServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Enabled = false
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Start(context.Background()); err == nil {
		t.Error("Start() without InitServer should fail")
	}
}
