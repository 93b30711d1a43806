// Package region loads areas of interest from GeoJSON files and bounding
// boxes.
package region

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geoexport/internal/domain"
)

// LoadFile reads a GeoJSON FeatureCollection, Feature or bare Geometry and
// returns the first geometry as a region.
func LoadFile(path string) (domain.Region, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is operator configuration
	if err != nil {
		return domain.Region{}, fmt.Errorf("reading region file: %w", err)
	}
	return Parse(data)
}

// Parse decodes GeoJSON into a region.
func Parse(data []byte) (domain.Region, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return domain.Region{}, invalid("geojson", err.Error())
	}

	var geom orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return domain.Region{}, invalid("geojson", err.Error())
		}
		if len(fc.Features) == 0 {
			return domain.Region{}, invalid("geojson", "feature collection is empty")
		}
		geom = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return domain.Region{}, invalid("geojson", err.Error())
		}
		geom = f.Geometry
	case "":
		return domain.Region{}, invalid("geojson", "missing type member")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return domain.Region{}, invalid("geojson", err.Error())
		}
		geom = g.Geometry()
	}

	if geom == nil {
		return domain.Region{}, invalid("geojson", "feature has no geometry")
	}

	r := domain.NewRegion(geom)
	if err := r.Validate(); err != nil {
		return domain.Region{}, err
	}
	return r, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat" into a rectangular region.
func ParseBBox(s string) (domain.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Region{}, invalid("bbox", "want minLon,minLat,maxLon,maxLat")
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Region{}, invalid("bbox", fmt.Sprintf("component %d: %v", i+1, err))
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return domain.Region{}, invalid("bbox", "min must be less than max")
	}

	r := domain.NewRegionFromBound(orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}})
	if err := r.Validate(); err != nil {
		return domain.Region{}, err
	}
	return r, nil
}

func invalid(field, msg string) error {
	return &domain.ValidationError{
		Field:      field,
		Constraint: "region",
		Message:    msg,
	}
}
