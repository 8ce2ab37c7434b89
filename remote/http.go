package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://rest.vidscribe-render.dev"
	defaultQueueURL  = "https://queue.vidscribe-render.dev"
	defaultModelPath = "subtitles/render"

	// Status polls are rate limited client-side so tight poll loops
	// cannot trip the service's 429 responses.
	defaultStatusRate  = rate.Limit(2)
	defaultStatusBurst = 4
)

// HTTPClient talks to the rendering service over its REST and queue
// endpoints with API-key auth.
type HTTPClient struct {
	apiKey    string
	baseURL   string
	queueURL  string
	modelPath string
	http      *http.Client
	logger    *slog.Logger
	statusLim *rate.Limiter
}

var _ Client = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithBaseURLs overrides the REST and queue endpoints, for tests and
// self-hosted deployments.
func WithBaseURLs(base, queue string) HTTPOption {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(base, "/")
		c.queueURL = strings.TrimRight(queue, "/")
	}
}

// WithModelPath overrides the queue model path.
func WithModelPath(path string) HTTPOption {
	return func(c *HTTPClient) { c.modelPath = strings.Trim(path, "/") }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = logger }
}

// WithStatusRateLimit overrides the client-side status poll limiter.
func WithStatusRateLimit(r rate.Limit, burst int) HTTPOption {
	return func(c *HTTPClient) { c.statusLim = rate.NewLimiter(r, burst) }
}

// NewHTTPClient creates a client authenticated with the given API key.
func NewHTTPClient(apiKey string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		queueURL:  defaultQueueURL,
		modelPath: defaultModelPath,
		http:      &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
		statusLim: rate.NewLimiter(defaultStatusRate, defaultStatusBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initiateUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type initiateUploadResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// Upload performs the two-step handshake: initiate to obtain a signed
// PUT target and the durable file URL, then stream the bytes to the
// signed target.
func (c *HTTPClient) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	var grant initiateUploadResponse
	err := c.call(ctx, http.MethodPost, c.baseURL+"/storage/upload/initiate",
		initiateUploadRequest{FileName: filename, ContentType: contentType}, &grant)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, body)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "build upload request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "upload", Cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", c.decodeError(res)
	}

	c.logger.Debug("file uploaded", "filename", filename, "bytes", size)
	return grant.FileURL, nil
}

// Submit queues a render request against the model endpoint.
func (c *HTTPClient) Submit(ctx context.Context, sr SubmitRequest) (Submission, error) {
	payload := struct {
		VideoURL string `json:"video_url"`
		SubtitleOptions
	}{VideoURL: sr.VideoURL, SubtitleOptions: sr.Options}

	var sub Submission
	err := c.call(ctx, http.MethodPost, c.queueURL+"/"+c.modelPath, payload, &sub)
	if err != nil {
		return Submission{}, err
	}
	c.logger.Info("render request submitted", "request_id", sub.RequestID)
	return sub, nil
}

// Status polls the request phase, subject to the client-side limiter.
func (c *HTTPClient) Status(ctx context.Context, requestID string) (Status, error) {
	if err := c.statusLim.Wait(ctx); err != nil {
		return Status{}, err
	}
	var st Status
	err := c.call(ctx, http.MethodGet, c.requestURL(requestID)+"/status", nil, &st)
	return st, err
}

// Result fetches the completed request's output descriptor.
func (c *HTTPClient) Result(ctx context.Context, requestID string) (Result, error) {
	var r Result
	err := c.call(ctx, http.MethodGet, c.requestURL(requestID), nil, &r)
	return r, err
}

// Cancel abandons a queued or running request. A request already in a
// terminal phase cancels as a no-op.
func (c *HTTPClient) Cancel(ctx context.Context, requestID string) error {
	return c.call(ctx, http.MethodPut, c.requestURL(requestID)+"/cancel", nil, nil)
}

// Download streams the artifact at url to w.
func (c *HTTPClient) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Message: "build download request", Cause: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Message: "download", Cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return 0, c.decodeError(res)
	}

	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, &Error{Kind: KindNetwork, Message: "download stream", Cause: err}
	}
	return n, nil
}

func (c *HTTPClient) requestURL(requestID string) string {
	return c.queueURL + "/" + c.modelPath + "/requests/" + requestID
}

// call executes one JSON request with auth and decodes the response
// into v when non-nil.
func (c *HTTPClient) call(ctx context.Context, method, url string, payload, v any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("vidscribe: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "build request", Cause: err}
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: method + " " + url, Cause: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return c.decodeError(res)
	}
	if v == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return &Error{Kind: KindServer, StatusCode: res.StatusCode, Message: "decode response", Cause: err}
	}
	return nil
}

// decodeError maps a non-2xx response to a typed Error, preferring the
// service's JSON detail field over the raw body.
func (c *HTTPClient) decodeError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	msg := strings.TrimSpace(string(raw))
	var envelope struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Detail != "" {
		msg = envelope.Detail
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}

	return &Error{
		Kind:       classifyStatus(res.StatusCode),
		StatusCode: res.StatusCode,
		Message:    msg,
	}
}
