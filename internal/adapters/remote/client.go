// Package remote provides the HTTP client for the remote export service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geoexport/internal/domain"
)

// sizeLimitPhrase is the message fragment of legacy size rejections that
// carry no error code.
const sizeLimitPhrase = "must be less than or equal"

// Service error codes that mean the request was too large.
var sizeExceededCodes = map[string]bool{
	"SIZE_EXCEEDED":      true,
	"RESOURCE_EXHAUSTED": true,
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds remote service configuration.
type Config struct {
	BaseURL   string
	Token     string        // Bearer token, optional
	Timeout   time.Duration // 0 means no client-side deadline
	UserAgent string
}

// Client implements output.ExportClient over HTTP.
type Client struct {
	client    *http.Client
	baseURL   string
	token     string
	userAgent string
}

// NewClient creates a new remote export client.
func NewClient(cfg Config) *Client {
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
	}
}

type downloadRequest struct {
	Region      *geojson.Geometry `json:"region"`
	Bands       []string          `json:"bands"`
	Scale       float64           `json:"scale"`
	FilePerBand bool              `json:"file_per_band"`
}

type downloadResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RequestDownload asks the service for a download URL of one rendering of
// the image.
func (c *Client) RequestDownload(ctx context.Context, req domain.ExportRequest) (domain.Locator, error) {
	if req.Region.IsZero() {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Message: "request has no region"}
	}

	body, err := json.Marshal(downloadRequest{
		Region:      geojson.NewGeometry(req.Region.Geometry()),
		Bands:       req.Bands,
		Scale:       req.Resolution,
		FilePerBand: false,
	})
	if err != nil {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Message: "encoding request", Err: err}
	}

	endpoint := c.baseURL + "/v1/images/" + url.PathEscape(string(req.Image)) + ":getDownloadUrl"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Message: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	// Transport failures are transient: the next candidate may well succeed.
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Err: fmt.Errorf("requesting download url: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return domain.Locator{}, decodeError(resp)
	}

	var out downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if out.URL == "" {
		return domain.Locator{}, &domain.ExportError{Kind: domain.FailureOther, Message: "response carries no url"}
	}

	return domain.Locator{URL: out.URL, IssuedAt: time.Now()}, nil
}

// decodeError turns a non-200 response into a classified ExportError.
func decodeError(resp *http.Response) *domain.ExportError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload errorResponse
	code, message := "", strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && (payload.Error.Code != "" || payload.Error.Message != "") {
		code, message = payload.Error.Code, payload.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &domain.ExportError{
		Kind:    Classify(resp.StatusCode, code, message),
		Code:    code,
		Message: message,
		Err:     fmt.Errorf("status %d", resp.StatusCode),
	}
}

// Classify maps a service failure to a failure kind. The error code takes
// precedence; the message is only consulted for the legacy size phrase.
// Client and server errors are Other; any other status is Unknown.
func Classify(status int, code, message string) domain.FailureKind {
	if sizeExceededCodes[strings.ToUpper(code)] {
		return domain.FailureSizeExceeded
	}
	if strings.Contains(strings.ToLower(message), sizeLimitPhrase) {
		return domain.FailureSizeExceeded
	}
	if code != "" {
		return domain.FailureOther
	}
	if status >= 400 && status < 600 {
		return domain.FailureOther
	}
	return domain.FailureUnknown
}
