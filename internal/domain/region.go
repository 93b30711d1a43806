// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Region is an immutable area of interest in WGS84 (lon/lat) coordinates.
type Region struct {
	geom orb.Geometry
	area float64 // Geodesic area in square meters, 0 if unknown
}

// NewRegion creates a region from a geometry and derives its area.
func NewRegion(geom orb.Geometry) Region {
	r := Region{geom: geom}
	if geom == nil {
		return r
	}

	if a := geo.Area(geom); a > 0 && !math.IsInf(a, 0) && !math.IsNaN(a) {
		r.area = a
	}
	return r
}

// NewRegionFromBound creates a rectangular region from a bounding box.
func NewRegionFromBound(b orb.Bound) Region {
	return NewRegion(b.ToPolygon())
}

// Geometry returns the underlying geometry.
func (r Region) Geometry() orb.Geometry {
	return r.geom
}

// Area returns the area in square meters and whether it is known.
func (r Region) Area() (float64, bool) {
	return r.area, r.area > 0
}

// Bound returns the bounding box of the region.
func (r Region) Bound() orb.Bound {
	if r.geom == nil {
		return orb.Bound{}
	}
	return r.geom.Bound()
}

// IsZero returns true if the region has no geometry.
func (r Region) IsZero() bool {
	return r.geom == nil
}

// Validate checks that the region is usable for an export request.
func (r Region) Validate() error {
	if r.geom == nil {
		return &ValidationError{
			Field:      "region",
			Constraint: "non-empty geometry",
			Message:    "region has no geometry",
		}
	}

	b := r.Bound()
	if b.Min[0] < -180 || b.Max[0] > 180 {
		return &ValidationError{
			Field:      "region.longitude",
			Value:      fmt.Sprintf("[%f, %f]", b.Min[0], b.Max[0]),
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	if b.Min[1] < -90 || b.Max[1] > 90 {
		return &ValidationError{
			Field:      "region.latitude",
			Value:      fmt.Sprintf("[%f, %f]", b.Min[1], b.Max[1]),
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// TilePosition names a quadrant of a bounding box.
type TilePosition string

// Quadrant positions in request order.
const (
	TileNW TilePosition = "NW"
	TileNE TilePosition = "NE"
	TileSW TilePosition = "SW"
	TileSE TilePosition = "SE"
)

// Tile is one quadrant of a region's bounding box, requested on its own.
type Tile struct {
	Index    int // 1-based, NW=1 NE=2 SW=3 SE=4
	Position TilePosition
	Region   Region
}

// Quadrants splits the region's bounding box into four tiles.
// The split is a single level; tiles are never subdivided further.
func (r Region) Quadrants() [4]Tile {
	b := r.Bound()
	minX, minY := b.Min[0], b.Min[1]
	maxX, maxY := b.Max[0], b.Max[1]
	midX := (minX + maxX) / 2
	midY := (minY + maxY) / 2

	rect := func(x0, y0, x1, y1 float64) Region {
		return NewRegionFromBound(orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}})
	}

	return [4]Tile{
		{Index: 1, Position: TileNW, Region: rect(minX, midY, midX, maxY)},
		{Index: 2, Position: TileNE, Region: rect(midX, midY, maxX, maxY)},
		{Index: 3, Position: TileSW, Region: rect(minX, minY, midX, midY)},
		{Index: 4, Position: TileSE, Region: rect(midX, minY, maxX, midY)},
	}
}
