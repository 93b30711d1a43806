package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geoexport/internal/adapters/region"
	"github.com/jobrunner/geoexport/internal/application"
	"github.com/jobrunner/geoexport/internal/domain"
)

// maxRequestBody bounds export request bodies, which carry a region.
const maxRequestBody = 8 << 20

// ExportParams is the body of an export request. Empty fields fall back to
// the server defaults.
type ExportParams struct {
	Mode      string          `json:"mode,omitempty"`
	Image     string          `json:"image,omitempty"`
	Region    json.RawMessage `json:"region,omitempty"`
	BBox      string          `json:"bbox,omitempty"`
	MaxBytes  string          `json:"max_bytes,omitempty"`
	Tolerance float64         `json:"tolerance,omitempty"`
}

// handleExport runs a negotiation and returns its outcome.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	job, err := s.parseExportParams(w, r)
	if err != nil {
		s.handleExportError(w, err)
		return
	}

	outcome, err := s.exports.Export(r.Context(), job)
	if err != nil {
		s.handleExportError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, formatOutcome(outcome))
}

// parseExportParams decodes the request body into an export job.
func (s *Server) parseExportParams(w http.ResponseWriter, r *http.Request) (application.ExportJob, error) {
	job := application.ExportJob{
		Mode:   s.defaults.Mode,
		Image:  s.defaults.Image,
		Region: s.defaults.Region,
		Budget: s.defaults.Budget,
	}

	var params ExportParams
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			return job, invalidParam("body", err.Error())
		}
	}

	if params.Mode != "" {
		job.Mode = domain.ExportMode(strings.ToLower(params.Mode))
	}
	if params.Image != "" {
		job.Image = domain.ImageRef(params.Image)
	}

	switch {
	case len(params.Region) > 0 && params.BBox != "":
		return job, invalidParam("region", "region and bbox are mutually exclusive")
	case len(params.Region) > 0:
		reg, err := region.Parse(params.Region)
		if err != nil {
			return job, err
		}
		job.Region = reg
	case params.BBox != "":
		reg, err := region.ParseBBox(params.BBox)
		if err != nil {
			return job, err
		}
		job.Region = reg
	}

	if params.MaxBytes != "" {
		size, err := domain.ParseSize(params.MaxBytes)
		if err != nil || size == 0 {
			return job, invalidParam("max_bytes", "expected a size such as 48MiB")
		}
		job.Budget.MaxBytes = size
	}
	if params.Tolerance != 0 {
		if params.Tolerance < 1 || math.IsInf(params.Tolerance, 0) {
			return job, invalidParam("tolerance", "tolerance must be at least 1")
		}
		job.Budget.Tolerance = params.Tolerance
	}

	if job.Image == "" {
		return job, invalidParam("image", "image is required")
	}
	if job.Region.IsZero() {
		return job, invalidParam("region", "region or bbox is required")
	}

	return job, nil
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"busy":       details.Busy,
		"artifacts":  details.Artifacts,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListArtifacts returns all recorded artifacts.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	records, err := s.artifacts.ListArtifacts(r.Context())
	if err != nil {
		s.logger.Error("listing artifacts failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list artifacts")
		return
	}

	response := make([]map[string]interface{}, len(records))
	for i := range records {
		response[i] = formatRecord(&records[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": response,
		"count":     len(records),
	})
}

// handleGetArtifact returns one recorded artifact.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	rec, err := s.artifacts.GetArtifact(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			s.writeError(w, http.StatusNotFound, "Artifact not found")
			return
		}
		s.logger.Error("getting artifact failed", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get artifact")
		return
	}

	s.writeJSON(w, http.StatusOK, formatRecord(rec))
}

// handleSync reconciles the catalog and the publish target.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.exports.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI document.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI document", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// handleExportError maps negotiation errors to HTTP status codes.
func (s *Server) handleExportError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	if errors.Is(err, domain.ErrNegotiationBusy) {
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusConflict, "An export is already running")
		return
	}

	var exhausted *domain.ExhaustionError
	if errors.As(err, &exhausted) {
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":      http.StatusText(http.StatusBadGateway),
			"message":    exhausted.Error(),
			"strategies": exhausted.Strategies,
			"attempts":   formatAttempts(exhausted.Attempts),
		})
		return
	}

	if errors.Is(err, domain.ErrInvalidInput) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Error("export error", "error", err)
	s.writeError(w, http.StatusInternalServerError, "Export failed")
}

// formatOutcome formats a negotiation outcome for JSON output.
func formatOutcome(o *domain.Outcome) map[string]interface{} {
	artifacts := make([]map[string]interface{}, len(o.Artifacts))
	for i := range o.Artifacts {
		artifacts[i] = formatArtifact(&o.Artifacts[i])
	}

	failed := o.FailedTiles
	if failed == nil {
		failed = []int{}
	}

	return map[string]interface{}{
		"strategy":     o.Strategy,
		"complete":     o.Complete(),
		"artifacts":    artifacts,
		"failed_tiles": failed,
		"attempts":     formatAttempts(o.Attempts),
		"duration_ms":  o.Duration.Milliseconds(),
	}
}

func formatAttempts(attempts []domain.Attempt) []map[string]interface{} {
	out := make([]map[string]interface{}, len(attempts))
	for i, a := range attempts {
		entry := map[string]interface{}{
			"strategy":   a.Strategy,
			"bands":      a.Candidate.Bands,
			"resolution": a.Candidate.Resolution,
			"estimate":   domain.FormatEstimate(a.Candidate.EstimatedBytes),
			"fallback":   a.Candidate.Fallback,
			"outcome":    attemptOutcome(a),
		}
		if a.Tile > 0 {
			entry["tile"] = a.Tile
		}
		if a.Artifact != "" {
			entry["artifact"] = a.Artifact
		}
		if a.Err != nil {
			entry["error"] = a.Err.Error()
		}
		out[i] = entry
	}
	return out
}

func attemptOutcome(a domain.Attempt) string {
	if a.Succeeded() {
		return "success"
	}
	var exportErr *domain.ExportError
	if errors.As(a.Err, &exportErr) {
		return exportErr.Kind.String()
	}
	return "store"
}

func formatArtifact(a *domain.Artifact) map[string]interface{} {
	m := map[string]interface{}{
		"name":       a.Name,
		"path":       a.Path,
		"size":       a.Size,
		"digest":     a.Digest,
		"source":     a.Source,
		"skipped":    a.Skipped,
		"created_at": a.CreatedAt,
	}
	if a.ArchivePath != "" {
		m["archive_path"] = a.ArchivePath
	}
	return m
}

// formatRecord formats a catalog record for JSON output.
func formatRecord(rec *domain.ArtifactRecord) map[string]interface{} {
	m := formatArtifact(&rec.Artifact)
	m["image"] = rec.Image
	m["mode"] = rec.Mode
	m["resolution"] = rec.Resolution
	m["bands"] = rec.Bands
	if rec.Tile > 0 {
		m["tile"] = rec.Tile
	}
	return m
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func invalidParam(field, msg string) error {
	return &domain.ValidationError{Field: field, Constraint: "request", Message: msg}
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
