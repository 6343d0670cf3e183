// Package client talks to the CBCT analysis service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kamilpajak/crestline/pkg/analysis"
)

// maxResponseBytes caps the response body (annotated images are inlined).
const maxResponseBytes = 64 << 20

// Request is one analysis submission.
type Request struct {
	ImageName   string
	ContentType string
	Image       []byte
	Mode        analysis.Mode
	Zoom        string
}

// Client handles analysis service interactions.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the service at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze submits the image and waits for exactly one response. Every
// failure is returned as a *ServiceError.
func (c *Client) Analyze(ctx context.Context, req Request) (analysis.Result, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, &ServiceError{Message: genericMessage, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", body)
	if err != nil {
		return nil, &ServiceError{Message: genericMessage, Cause: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Message: genericMessage, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: genericMessage, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Cause:      fmt.Errorf("analysis service returned %s", resp.Status),
		}
	}

	result, err := analysis.Decode(req.Mode, data)
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: genericMessage, Cause: err}
	}
	return result, nil
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Status string `json:"status"`
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if status.Status != "ok" {
		return fmt.Errorf("health check: status %q", status.Status)
	}
	return nil
}

// errorMessage extracts the "error" field from a failure body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.Error) == "" {
		return genericMessage
	}
	return payload.Error
}

func encodeMultipart(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := req.ImageName
	if name == "" {
		name = "image"
	}
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField("mode", string(req.Mode)); err != nil {
		return nil, "", err
	}
	zoom := req.Zoom
	if zoom == "" {
		zoom = analysis.DefaultZoomText
	}
	if err := mw.WriteField("zoom", zoom); err != nil {
		return nil, "", err
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
