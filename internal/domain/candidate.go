package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
)

// BandSet is an ordered, non-empty set of distinct band identifiers.
type BandSet []string

// Len returns the number of bands.
func (b BandSet) Len() int {
	return len(b)
}

// String joins the band names with underscores, as used in artifact names.
func (b BandSet) String() string {
	return strings.Join(b, "_")
}

// Validate checks that the set is non-empty and has no duplicates.
func (b BandSet) Validate() error {
	if len(b) == 0 {
		return &ValidationError{
			Field:      "bands",
			Constraint: "non-empty",
			Message:    "band set must contain at least one band",
		}
	}

	seen := make(map[string]struct{}, len(b))
	for _, name := range b {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{
				Field:      "bands",
				Value:      b.String(),
				Constraint: "non-blank names",
				Message:    "band names must not be blank",
			}
		}
		if _, dup := seen[name]; dup {
			return &ValidationError{
				Field:      "bands",
				Value:      name,
				Constraint: "distinct",
				Message:    fmt.Sprintf("band %q listed more than once", name),
			}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ResolutionLadder is the ordered search over pixel sizes anchored at a
// preferred target resolution.
type ResolutionLadder struct {
	Target  float64   // Preferred pixel size in meters
	Finer   []float64 // Candidates below Target
	Coarser []float64 // Candidates above Target
}

// Sequence returns the target followed by the finer values in ascending
// detail and then the coarser values in ascending size. Values equal to the
// target, values on the wrong side of it and duplicates are dropped.
func (l ResolutionLadder) Sequence() []float64 {
	seen := map[float64]struct{}{l.Target: {}}

	var finer []float64
	for _, v := range l.Finer {
		if _, dup := seen[v]; dup || v >= l.Target || v <= 0 {
			continue
		}
		seen[v] = struct{}{}
		finer = append(finer, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(finer)))

	var coarser []float64
	for _, v := range l.Coarser {
		if _, dup := seen[v]; dup || v <= l.Target {
			continue
		}
		seen[v] = struct{}{}
		coarser = append(coarser, v)
	}
	sort.Float64s(coarser)

	seq := make([]float64, 0, 1+len(finer)+len(coarser))
	seq = append(seq, l.Target)
	seq = append(seq, finer...)
	return append(seq, coarser...)
}

// SizeBudget bounds the estimated size of a single export.
type SizeBudget struct {
	MaxBytes  int64
	Tolerance float64 // Overhead allowance multiplier, e.g. 1.2
}

// Limit returns the admission threshold in bytes.
func (b SizeBudget) Limit() float64 {
	tol := b.Tolerance
	if tol <= 0 {
		tol = 1
	}
	return float64(b.MaxBytes) * tol
}

// Admits reports whether an estimate fits under the budget.
func (b SizeBudget) Admits(estimate float64) bool {
	return estimate <= b.Limit()
}

// Candidate is one (band-set, resolution) pair considered for a request.
type Candidate struct {
	Bands          BandSet
	Resolution     float64 // Pixel size in meters
	EstimatedBytes float64
	Fallback       bool // Synthesized because nothing fit the budget
}

// String returns a compact description for logs.
func (c Candidate) String() string {
	return fmt.Sprintf("bands=%s scale=%sm est=%s", c.Bands, FormatResolution(c.Resolution), FormatEstimate(c.EstimatedBytes))
}

// FormatResolution renders a resolution without trailing zeros.
func FormatResolution(res float64) string {
	return strconv.FormatFloat(res, 'f', -1, 64)
}

// FormatEstimate renders an estimate as a human-readable size.
func FormatEstimate(est float64) string {
	if math.IsInf(est, 1) || math.IsNaN(est) || est < 0 {
		return "unknown"
	}
	return datasize.ByteSize(uint64(est)).HumanReadable()
}

// ParseSize parses a human-readable size such as "48MiB", "50MB" or
// "1048576". Units are binary; the IEC "i" infix is accepted.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToLower(s), "ib") {
		s = s[:len(s)-2] + "B"
	}
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", s, err)
	}
	if size.Bytes() > math.MaxInt64 {
		return 0, fmt.Errorf("parsing size %q: too large", s)
	}
	return int64(size.Bytes()), nil
}
