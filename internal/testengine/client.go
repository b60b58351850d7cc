package testengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/seantiz/testengine-ci/internal/model"
)

const (
	maxResponseBodySize = 1 << 20  // 1MB
	maxReportBodySize   = 10 << 20 // 10MB, PDF and Excel reports

	defaultTimeout         = 10 * time.Second
	defaultTransferTimeout = 30 * time.Second

	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Client talks to one test engine instance.
//
// Timeouts are applied per request via context; the underlying http.Client
// has none of its own. A Client is safe for concurrent use.
type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	auth            Auth
	endpoints       Endpoints
	timeout         time.Duration
	transferTimeout time.Duration
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithAuth sets the credentials sent with every request.
func WithAuth(a Auth) Option {
	return func(c *Client) {
		if a != nil {
			c.auth = a
		}
	}
}

// WithEndpoints overrides the endpoint templates. Empty templates fall back
// to [DefaultEndpoints].
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e.Merge(DefaultEndpoints)
	}
}

// WithTimeout sets the timeout for ordinary API calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransferTimeout sets the timeout for uploads and report downloads.
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.transferTimeout = d
		}
	}
}

// WithRateLimit caps the request rate. A zero limit disables limiting.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the engine at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		auth:            NoAuth{},
		endpoints:       DefaultEndpoints,
		timeout:         defaultTimeout,
		transferTimeout: defaultTransferTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the engine base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections. The client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// request describes one API call.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	accept      string
	timeout     time.Duration
	limit       int64
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

// do sends req and returns the response. Non-2xx responses are returned
// both as a response and as a *StatusError so callers that tolerate some
// codes can still inspect the body.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	timeout := req.timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.baseURL.JoinPath(req.path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), req.body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	accept := req.accept
	if accept == "" {
		accept = MediaJSON
	}
	httpReq.Header.Set("Accept", accept)
	reqID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", reqID)
	c.auth.Apply(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := req.limit
	if limit == 0 {
		limit = maxResponseBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.method, req.path, err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if int64(len(body)) > limit {
		if ok {
			return nil, fmt.Errorf("%s %s: %w (limit %d bytes)", req.method, req.path, ErrResponseTooLarge, limit)
		}
		// error bodies only feed the message
		body = body[:limit]
	}

	c.logger.Debug("engine request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", reqID,
	)

	out := &response{code: resp.StatusCode, header: resp.Header, body: body}
	if !ok {
		return out, newStatusError(resp.StatusCode, body)
	}
	return out, nil
}

// getJSON performs a GET and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	return decode(resp.body, v)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// ListJobs returns the job collection. It doubles as a credentials check.
func (c *Client) ListJobs(ctx context.Context) (*JobList, error) {
	var list JobList
	if err := c.getJSON(ctx, c.endpoints.Jobs, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UploadProject uploads the project file at path and returns the new job id.
func (c *Client) UploadProject(ctx context.Context, path string, opts UploadOptions) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open project: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy project: %w", err)
	}
	for _, kv := range opts.fields() {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        c.endpoints.Jobs,
		body:        &buf,
		contentType: mw.FormDataContentType(),
		timeout:     c.transferTimeout,
	})
	if err != nil {
		return "", err
	}

	var created struct {
		TestjobID string `json:"testjobId"`
	}
	if err := decode(resp.body, &created); err != nil {
		return "", err
	}
	if created.TestjobID == "" {
		return "", fmt.Errorf("%w: upload response has no testjobId", ErrMalformedResponse)
	}
	return created.TestjobID, nil
}

// StartJob starts a previously uploaded job.
func (c *Client) StartJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        expand(c.endpoints.Run, id),
		body:        strings.NewReader("{}"),
		contentType: MediaJSON,
	})
	return err
}

// CancelJob cancels a job that has not reached a terminal state.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   expand(c.endpoints.Job, id),
	})
	return err
}

// JobStatus reads the job's current status from the configured status endpoint.
func (c *Client) JobStatus(ctx context.Context, id string) (*JobStatus, error) {
	var st JobStatus
	if err := c.getJSON(ctx, expand(c.endpoints.Status, id), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// JobReport returns the JSON execution report.
func (c *Client) JobReport(ctx context.Context, id string) (*model.Report, error) {
	var r model.Report
	if err := c.getJSON(ctx, expand(c.endpoints.Report, id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DownloadReport fetches the report in the representation named by accept.
func (c *Client) DownloadReport(ctx context.Context, id, accept string) ([]byte, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    expand(c.endpoints.Report, id),
		accept:  accept,
		timeout: c.transferTimeout,
		limit:   maxReportBodySize,
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// JUnitReport fetches the dedicated JUnit XML resource.
func (c *Client) JUnitReport(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    expand(c.endpoints.JUnit, id),
		accept:  "application/xml",
		timeout: c.transferTimeout,
		limit:   maxReportBodySize,
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// JobLogs fetches the plain-text execution log.
func (c *Client) JobLogs(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    expand(c.endpoints.Logs, id),
		accept:  "text/plain",
		timeout: c.transferTimeout,
		limit:   maxReportBodySize,
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Version probes the version endpoint. Responses below 500 are returned as
// VersionInfo; 5xx responses and transport failures are errors.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: c.endpoints.Version})
	if resp == nil {
		return nil, err
	}
	if resp.code >= http.StatusInternalServerError {
		return nil, err
	}

	info := &VersionInfo{StatusCode: resp.code}
	var payload struct {
		Version string `json:"version"`
	}
	if json.Unmarshal(resp.body, &payload) == nil {
		info.Version = payload.Version
		info.Raw = json.RawMessage(resp.body)
	}
	return info, nil
}

// LicenseStatus reads the server's license state.
func (c *Client) LicenseStatus(ctx context.Context) (*LicenseStatus, error) {
	var st LicenseStatus
	if err := c.getJSON(ctx, c.endpoints.License, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ActivateLicense registers a license with the server.
func (c *Client) ActivateLicense(ctx context.Context, req LicenseRequest) (*LicenseStatus, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode license request: %w", err)
	}
	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        c.endpoints.License,
		body:        bytes.NewReader(body),
		contentType: MediaJSON,
		timeout:     c.transferTimeout,
	})
	if err != nil {
		return nil, err
	}

	var st LicenseStatus
	if len(bytes.TrimSpace(resp.body)) == 0 {
		st.IsValid = true
		return &st, nil
	}
	if err := decode(resp.body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
