package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPConfig holds configuration for the multipart transmitter.
type HTTPConfig struct {
	// URL is the endpoint chunks are posted to.
	URL string

	// Headers are set on every request, for example an Authorization header.
	Headers map[string]string

	// Client is the underlying HTTP client. If nil, a default client with
	// transport-level retries disabled is created; the upload engine retries
	// chunks itself.
	Client *retryablehttp.Client

	Logger log.Logger
}

// HTTPTransmitter posts each chunk as a multipart/form-data body carrying the
// chunk bytes plus fileName, chunkIndex and totalChunks fields.
type HTTPTransmitter struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  log.Logger
}

// NewHTTPTransmitter ...
func NewHTTPTransmitter(cfg HTTPConfig) (*HTTPTransmitter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL must not be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	client := cfg.Client
	if client == nil {
		client = retryhttp.NewClient(logger)
		client.HTTPClient = DefaultHTTPClient()
		// Per-chunk retries are the engine's job
		client.RetryMax = 0
	}

	return &HTTPTransmitter{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client.StandardClient(),
		logger:  logger,
	}, nil
}

// DefaultHTTPClient creates an HTTP client optimized for chunk uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - cancellation is handled via context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// Transmit sends one chunk. A non-2xx response with a 4xx status is a fatal
// rejection; 5xx responses and transport errors are transient.
func (t *HTTPTransmitter) Transmit(ctx context.Context, c chunk.Chunk, body io.Reader, meta Metadata) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("fileName", meta.UploadKey); err != nil {
		return fmt.Errorf("write fileName field: %w", err)
	}
	if err := form.WriteField("chunkIndex", strconv.Itoa(c.Index)); err != nil {
		return fmt.Errorf("write chunkIndex field: %w", err)
	}
	if err := form.WriteField("totalChunks", strconv.Itoa(meta.TotalChunks)); err != nil {
		return fmt.Errorf("write totalChunks field: %w", err)
	}

	part, err := form.CreateFormFile("chunk", meta.FileName)
	if err != nil {
		return fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copy chunk %d body: %w", c.Index+1, err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transmit chunk %d: %w", c.Index+1, ctx.Err())
		}
		return &TransmitError{Message: fmt.Sprintf("do request: %s", err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return &TransmitError{
			StatusCode: resp.StatusCode,
			Message:    string(errorBody[:n]),
			Fatal:      resp.StatusCode >= 400 && resp.StatusCode < 500,
		}
	}

	return nil
}
