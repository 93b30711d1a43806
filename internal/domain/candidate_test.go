package domain

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestResolutionLadderSequence(t *testing.T) {
	tests := []struct {
		name   string
		ladder ResolutionLadder
		want   []float64
	}{
		{
			name: "default ladder",
			ladder: ResolutionLadder{
				Target:  120,
				Finer:   []float64{90, 75, 60, 45, 30},
				Coarser: []float64{150, 180, 210, 240, 270, 300},
			},
			want: []float64{120, 90, 75, 60, 45, 30, 150, 180, 210, 240, 270, 300},
		},
		{
			name: "drops target, duplicates and wrong side",
			ladder: ResolutionLadder{
				Target:  60,
				Finer:   []float64{30, 90, 60, 45, 30},
				Coarser: []float64{300, 45, 60, 150, 150},
			},
			want: []float64{60, 45, 30, 150, 300},
		},
		{
			name:   "target only",
			ladder: ResolutionLadder{Target: 30},
			want:   []float64{30},
		},
		{
			name: "unordered input",
			ladder: ResolutionLadder{
				Target:  100,
				Finer:   []float64{10, 50, 20},
				Coarser: []float64{400, 200},
			},
			want: []float64{100, 50, 20, 10, 200, 400},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ladder.Sequence(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sequence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBandSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		bands   BandSet
		wantErr bool
	}{
		{"valid", BandSet{"NDVI", "ST_C"}, false},
		{"empty", BandSet{}, true},
		{"nil", nil, true},
		{"duplicate", BandSet{"NDVI", "NDVI"}, true},
		{"blank", BandSet{"NDVI", " "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bands.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBandSetString(t *testing.T) {
	if got := (BandSet{"SR_B4", "NDVI", "ST_C"}).String(); got != "SR_B4_NDVI_ST_C" {
		t.Errorf("String() = %q, want %q", got, "SR_B4_NDVI_ST_C")
	}
}

func TestFormatResolution(t *testing.T) {
	tests := []struct {
		res  float64
		want string
	}{
		{120, "120"},
		{30, "30"},
		{12.5, "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatResolution(tt.res); got != tt.want {
				t.Errorf("FormatResolution(%v) = %q, want %q", tt.res, got, tt.want)
			}
		})
	}
}

func TestFormatEstimate(t *testing.T) {
	if got := FormatEstimate(math.Inf(1)); got != "unknown" {
		t.Errorf("FormatEstimate(+Inf) = %q, want %q", got, "unknown")
	}
	if got := FormatEstimate(2048); got == "" || got == "unknown" {
		t.Errorf("FormatEstimate(2048) = %q", got)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"48MiB", 48 << 20, false},
		{"48MB", 48 << 20, false},
		{"512kib", 512 << 10, false},
		{"1048576", 1 << 20, false},
		{" 2GiB ", 2 << 30, false},
		{"lots", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
