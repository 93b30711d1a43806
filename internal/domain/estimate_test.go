package domain

import (
	"math"
	"testing"
)

func TestEstimateBytes(t *testing.T) {
	tests := []struct {
		name  string
		area  float64
		known bool
		bands int
		res   float64
		want  float64
	}{
		{"120m two bands", 900_000_000, true, 2, 120, 500_000},
		{"10m two bands", 900_000_000, true, 2, 10, 72_000_000},
		{"30m one band", 900_000, true, 1, 30, 4_000},
		{"unknown area", 900_000_000, false, 2, 120, math.Inf(1)},
		{"zero area", 0, true, 2, 120, math.Inf(1)},
		{"zero resolution", 900_000_000, true, 2, 0, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateBytes(tt.area, tt.known, tt.bands, tt.res)
			if got != tt.want {
				t.Errorf("EstimateBytes(%v, %v, %d, %v) = %v, want %v", tt.area, tt.known, tt.bands, tt.res, got, tt.want)
			}
		})
	}
}

func TestEstimateBytesMonotonic(t *testing.T) {
	const area = 250_000_000.0
	resolutions := []float64{10, 30, 45, 60, 120, 300}

	for bands := 1; bands < 10; bands++ {
		for i, res := range resolutions {
			base := EstimateBytes(area, true, bands, res)

			if more := EstimateBytes(area, true, bands+1, res); more <= base {
				t.Errorf("estimate not increasing in band count: bands=%d res=%v", bands, res)
			}
			if larger := EstimateBytes(area*2, true, bands, res); larger <= base {
				t.Errorf("estimate not increasing in area: bands=%d res=%v", bands, res)
			}
			if i+1 < len(resolutions) {
				if coarser := EstimateBytes(area, true, bands, resolutions[i+1]); coarser >= base {
					t.Errorf("estimate not decreasing in resolution: bands=%d res=%v", bands, res)
				}
			}
		}
	}
}

func TestBudgetScenario(t *testing.T) {
	budget := SizeBudget{MaxBytes: 50_000_000, Tolerance: 1.2}

	if est := EstimateBytes(900_000_000, true, 2, 120); !budget.Admits(est) {
		t.Errorf("120m estimate %v should be admitted under %v", est, budget.Limit())
	}
	if est := EstimateBytes(900_000_000, true, 2, 10); budget.Admits(est) {
		t.Errorf("10m estimate %v should be rejected under %v", est, budget.Limit())
	}
}

func TestSizeBudgetLimit(t *testing.T) {
	tests := []struct {
		name   string
		budget SizeBudget
		want   float64
	}{
		{"with tolerance", SizeBudget{MaxBytes: 100, Tolerance: 1.2}, 120},
		{"zero tolerance", SizeBudget{MaxBytes: 100}, 100},
		{"negative tolerance", SizeBudget{MaxBytes: 100, Tolerance: -1}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.budget.Limit(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Limit() = %v, want %v", got, tt.want)
			}
		})
	}
}
