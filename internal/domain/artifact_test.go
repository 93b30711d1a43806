package domain

import "testing"

func TestArtifactNameString(t *testing.T) {
	tests := []struct {
		name string
		in   ArtifactName
		want string
	}{
		{
			name: "single",
			in: ArtifactName{
				Prefix: "landsat_stack", Mode: ModeSingle, Resolution: 120,
				Bands: BandSet{"NDVI", "ST_C"}, Extension: ".tif",
			},
			want: "landsat_stack_single_s120m_NDVI_ST_C.tif",
		},
		{
			name: "tile",
			in: ArtifactName{
				Prefix: "landsat_stack", Mode: ModeTiled, Tile: 3, Resolution: 90,
				Bands: BandSet{"SR_B4", "NDVI", "ST_C"}, Extension: ".tif",
			},
			want: "landsat_stack_tile3_s90m_SR_B4_NDVI_ST_C.tif",
		},
		{
			name: "adaptive",
			in: ArtifactName{
				Prefix: "landsat_stack", Mode: ModeAdaptive, Resolution: 60,
				Bands: BandSet{"NDVI", "ST_C"}, Extension: ".tif",
			},
			want: "landsat_stack_s60m_NDVI_ST_C.tif",
		},
		{
			name: "extension without dot",
			in: ArtifactName{
				Prefix: "tunis", Mode: ModeSingle, Resolution: 30,
				Bands: BandSet{"NDVI"}, Extension: "tif",
			},
			want: "tunis_single_s30m_NDVI.tif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocatorIsZero(t *testing.T) {
	if !(Locator{}).IsZero() {
		t.Error("empty locator should be zero")
	}
	if (Locator{URL: "https://example.com/dl"}).IsZero() {
		t.Error("locator with URL should not be zero")
	}
}
