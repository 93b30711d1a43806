package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/geoexport/internal/domain"
)

const tunisPolygon = `{"type":"Polygon","coordinates":[[[10.0,36.6],[10.4,36.6],[10.4,37.0],[10.0,37.0],[10.0,36.6]]]}`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"geometry", tunisPolygon, false},
		{"feature", `{"type":"Feature","properties":{"name":"tunis"},"geometry":` + tunisPolygon + `}`, false},
		{"feature collection", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + tunisPolygon + `}]}`, false},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, true},
		{"feature without geometry", `{"type":"Feature","properties":{},"geometry":null}`, true},
		{"missing type", `{"coordinates":[1,2]}`, true},
		{"not json", `tunis`, true},
		{"out of range", `{"type":"Polygon","coordinates":[[[10,36],[200,36],[200,37],[10,37],[10,36]]]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("error should wrap ErrInvalidInput, got %v", err)
				}
				return
			}
			area, ok := r.Area()
			if !ok || area < 1.3e9 || area > 1.9e9 {
				t.Errorf("Area() = %v, %v; want roughly 1.6e9 m²", area, ok)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.geojson")
	if err := os.WriteFile(path, []byte(tunisPolygon), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if r.IsZero() {
		t.Error("region should not be empty")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.geojson")); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"10.0,36.6,10.4,37.0", false},
		{" 10.0, 36.6 , 10.4,37.0 ", false},
		{"10.0,36.6,10.4", true},
		{"10.4,36.6,10.0,37.0", true},
		{"a,b,c,d", true},
		{"10,36,10.4,95", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseBBox(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBBox() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				b := r.Bound()
				if b.Min[0] != 10.0 || b.Max[1] != 37.0 {
					t.Errorf("Bound() = %v", b)
				}
			}
		})
	}
}
