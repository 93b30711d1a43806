package application

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockExportClient implements output.ExportClient for testing.
type mockExportClient struct {
	mu       sync.Mutex
	requests []domain.ExportRequest
	respond  func(n int, req domain.ExportRequest) (domain.Locator, error)
}

func (m *mockExportClient) RequestDownload(_ context.Context, req domain.ExportRequest) (domain.Locator, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	m.mu.Unlock()

	if m.respond == nil {
		return domain.Locator{URL: "https://example.com/dl", IssuedAt: time.Now()}, nil
	}
	return m.respond(n, req)
}

func (m *mockExportClient) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// sizeExceededBelow rejects every request finer than res meters.
func sizeExceededBelow(res float64) func(int, domain.ExportRequest) (domain.Locator, error) {
	return func(_ int, req domain.ExportRequest) (domain.Locator, error) {
		if req.Resolution < res {
			return domain.Locator{}, &domain.ExportError{Kind: domain.FailureSizeExceeded, Message: "must be less than or equal to 50331648 bytes"}
		}
		return domain.Locator{URL: "https://example.com/dl"}, nil
	}
}

// mockStore implements output.ArtifactStore for testing.
type mockStore struct {
	dir   string
	calls []string
	fail  map[string]error
}

func (m *mockStore) Materialize(_ context.Context, _ domain.Locator, name string) (*domain.Artifact, error) {
	m.calls = append(m.calls, name)
	if err, ok := m.fail[name]; ok {
		return nil, err
	}
	return &domain.Artifact{
		Name:      name,
		Path:      filepath.Join(m.dir, name),
		Size:      1024,
		Source:    domain.SourceDirect,
		CreatedAt: time.Now(),
	}, nil
}

// mockSink implements ArtifactSink for testing.
type mockSink struct {
	records []domain.ArtifactRecord
	err     error
}

func (m *mockSink) Publish(_ context.Context, rec domain.ArtifactRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

// mockCatalog implements output.ArtifactCatalog for testing.
type mockCatalog struct {
	records map[string]domain.ArtifactRecord
	listErr error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{records: make(map[string]domain.ArtifactRecord)}
}

func (m *mockCatalog) Record(_ context.Context, rec domain.ArtifactRecord) error {
	m.records[rec.Name] = rec
	return nil
}

func (m *mockCatalog) List(_ context.Context) ([]domain.ArtifactRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.ArtifactRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockCatalog) Get(_ context.Context, name string) (*domain.ArtifactRecord, error) {
	rec, ok := m.records[name]
	if !ok {
		return nil, domain.ErrArtifactNotFound
	}
	return &rec, nil
}

func (m *mockCatalog) Remove(_ context.Context, name string) error {
	if _, ok := m.records[name]; !ok {
		return domain.ErrArtifactNotFound
	}
	delete(m.records, name)
	return nil
}

func (m *mockCatalog) Close() error {
	return nil
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects   map[string]bool
	uploads   []string
	uploadErr error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	var objs []output.StorageObject
	for key := range m.objects {
		objs = append(objs, output.StorageObject{Key: key})
	}
	return objs, nil
}

func (m *mockStorage) Upload(_ context.Context, key, _ string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.uploads = append(m.uploads, key)
	if m.objects == nil {
		m.objects = make(map[string]bool)
	}
	m.objects[key] = true
	return nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	return m.objects[key], nil
}

// mockMetrics counts attempt outcomes.
type mockMetrics struct {
	output.NoOpMetrics
	attempts map[string]int
}

func (m *mockMetrics) IncAttempts(strategy, outcome string) {
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	m.attempts[strategy+"/"+outcome]++
}

// blockingNegotiator implements input.Negotiator and blocks until released.
type blockingNegotiator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingNegotiator) NegotiateSingle(ctx context.Context, _ domain.ImageRef, _ domain.Region, _ domain.SizeBudget) (*domain.Outcome, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.Outcome{Strategy: domain.StrategySingle}, nil
}

func (b *blockingNegotiator) NegotiateAdaptive(_ context.Context, _ domain.ImageRef, _ domain.Region, _ domain.SizeBudget) (*domain.Outcome, error) {
	return nil, errors.New("not used")
}
