package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestFsnotifyOpToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{"remove", fsnotify.Remove, OpDelete},
		{"rename", fsnotify.Rename, OpDelete},
		{"create", fsnotify.Create, OpCreate},
		{"write", fsnotify.Write, OpModify},
		{"chmod", fsnotify.Chmod, OpModify},
		{"remove over write", fsnotify.Remove | fsnotify.Write, OpDelete},
		{"rename over create", fsnotify.Rename | fsnotify.Create, OpDelete},
		{"create over write", fsnotify.Create | fsnotify.Write, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fsnotifyOpToOperation(tt.op); got != tt.expected {
				t.Errorf("fsnotifyOpToOperation(%v) = %v, want %v", tt.op, got, tt.expected)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}

func newTestWatcher(t *testing.T, dir string, h Handler) *Watcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	w, err := New(Config{Dir: dir, Extension: "tif", Debounce: 50 * time.Millisecond}, h, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestIsArtifact(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), func(context.Context, Event) error { return nil })

	tests := []struct {
		path string
		want bool
	}{
		{"/out/landsat_stack_s60m_NDVI_ST_C.tif", true},
		{"/out/LANDSAT_STACK_S60M_NDVI.TIF", true},
		{"/out/landsat_stack_s60m_NDVI_ST_C.tif.part", false},
		{"/out/landsat_stack_s60m_NDVI_ST_C.tif.zip", false},
		{"/out/catalog.db", false},
	}

	for _, tt := range tests {
		if got := w.isArtifact(tt.path); got != tt.want {
			t.Errorf("isArtifact(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRecordCollapsesEvents(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), func(context.Context, Event) error { return nil })
	path := "/out/a.tif"

	w.record(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.record(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if got := w.pending[path].op; got != OpCreate {
		t.Errorf("create then write = %v, want create", got)
	}

	w.record(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if got := w.pending[path].op; got != OpDelete {
		t.Errorf("after remove = %v, want delete", got)
	}

	w.record(fsnotify.Event{Name: path, Op: fsnotify.Create})
	if got := w.pending[path].op; got != OpCreate {
		t.Errorf("delete then create = %v, want create", got)
	}

	w.record(fsnotify.Event{Name: "/out/a.tif.part", Op: fsnotify.Create})
	if _, ok := w.pending["/out/a.tif.part"]; ok {
		t.Error("staging files should be ignored")
	}
}

func TestWatcherDeliversDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "landsat_stack_tile2_s90m_NDVI_ST_C.tif")
	if err := os.WriteFile(path, []byte("II*\x00"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 8)
	w := newTestWatcher(t, dir, func(_ context.Context, e Event) error {
		events <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Operation != OpDelete || e.Name != "landsat_stack_tile2_s90m_NDVI_ST_C.tif" {
			t.Errorf("event = %+v, want delete of the artifact", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), func(context.Context, Event) error { return nil })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
