package domain

import (
	"fmt"
	"strings"
	"time"
)

// ImageRef identifies the remote product to export.
type ImageRef string

// ExportRequest is a single request to the remote export service.
type ExportRequest struct {
	Image      ImageRef
	Region     Region
	Bands      BandSet
	Resolution float64 // Pixel size in meters
}

// Locator is a transient, single-use reference to a ready payload.
// A fresh locator requires a fresh request.
type Locator struct {
	URL      string
	IssuedAt time.Time
}

// IsZero returns true if the locator carries no URL.
func (l Locator) IsZero() bool {
	return l.URL == ""
}

// ExportMode encodes how an artifact was negotiated.
type ExportMode string

// Export modes.
const (
	ModeSingle   ExportMode = "single"
	ModeAdaptive ExportMode = "adaptive"
	ModeTiled    ExportMode = "tiled"
)

// ArtifactName builds the final file name of an artifact.
type ArtifactName struct {
	Prefix     string
	Mode       ExportMode
	Tile       int // 1-based tile index, 0 if not tiled
	Resolution float64
	Bands      BandSet
	Extension  string
}

// String renders the name, e.g. landsat_stack_single_s120m_NDVI_ST_C.tif.
func (n ArtifactName) String() string {
	var sb strings.Builder
	sb.WriteString(n.Prefix)

	switch {
	case n.Tile > 0:
		fmt.Fprintf(&sb, "_tile%d", n.Tile)
	case n.Mode == ModeSingle:
		sb.WriteString("_single")
	}

	fmt.Fprintf(&sb, "_s%sm_%s", FormatResolution(n.Resolution), n.Bands)

	ext := n.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	sb.WriteString(ext)
	return sb.String()
}

// Artifact is a durable, validated local raster file.
type Artifact struct {
	Name        string    // Final file name
	Path        string    // Absolute or output-relative path of the final file
	ArchivePath string    // Sibling archive retained for provenance, if any
	Size        int64     // Size in bytes
	Digest      string    // Hex BLAKE3 digest of the final file
	Source      string    // "direct", "archive" or "existing"
	Skipped     bool      // A valid file was already present
	CreatedAt   time.Time // Materialization time
}

// Artifact sources.
const (
	SourceDirect   = "direct"
	SourceArchive  = "archive"
	SourceExisting = "existing"
)

// ArtifactRecord is an artifact together with the request that produced it.
type ArtifactRecord struct {
	Artifact
	Image      ImageRef
	Mode       ExportMode
	Tile       int
	Resolution float64
	Bands      BandSet
}
