// Package httpupload delivers queued uploads to the remote service over HTTP.
package httpupload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

// Header names sent with every upload.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRetryCount     = "X-Retry-Count"
	HeaderMetadataPrefix = "X-Upload-Metadata-"
)

// maxErrorBody bounds how much of a failed response is kept as the item's last error.
const maxErrorBody = 512

// Config contains configuration for the HTTP deliverer.
type Config struct {
	BaseURL   string            // Remote service root, e.g. https://api.example.com
	Endpoints map[string]string // Queue name -> path, e.g. recordings -> /api/recordings
	Token     string            // Optional bearer token
	Timeout   time.Duration     // Per-request timeout
	UserAgent string
	RateLimit float64 // Uploads started per second across all queues; 0 is unlimited
}

// DefaultConfig returns the default deliverer configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints: make(map[string]string),
		Timeout:   5 * time.Minute,
		UserAgent: "scribesync",
	}
}

// Deliverer streams an upload's file to the queue's endpoint.
type Deliverer struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
}

// New creates a deliverer.
func New(config Config) (*Deliverer, error) {
	if config.BaseURL == "" {
		return nil, errors.NewError(errors.CodeConfiguration, "remote base URL is required", nil)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	d := &Deliverer{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		config: config,
	}
	if config.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return d, nil
}

// Deliver sends one upload. A 2xx or 409 response confirms delivery; other
// statuses yield an unsuccessful Result. Transport failures and unreadable
// files are returned as errors.
func (d *Deliverer) Deliver(ctx context.Context, u *outbox.Upload) (outbox.Result, error) {
	endpoint, ok := d.config.Endpoints[u.Kind]
	if !ok {
		return outbox.Result{}, errors.Errorf(errors.CodeConfiguration, errors.ErrQueueNotFound,
			"no endpoint configured for queue %q", u.Kind)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return outbox.Result{}, ctx.Err()
			}
			return outbox.Result{}, errors.NewError(errors.CodeNetwork, "upload rate limit", err)
		}
	}

	f, err := os.Open(u.FilePath)
	if err != nil {
		return outbox.Result{}, errors.NewError(errors.CodeDelivery, "could not open upload file", err)
	}
	defer f.Close()

	req, err := d.newRequest(ctx, endpoint, f, u)
	if err != nil {
		return outbox.Result{}, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return outbox.Result{}, errors.NewError(errors.CodeNetwork, "upload request failed", err)
	}
	defer resp.Body.Close()
	tracing.RecordResponse(ctx, resp.StatusCode, req.ContentLength)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return outbox.Succeeded(u.ID), nil
	case resp.StatusCode == http.StatusConflict:
		// The server already holds this idempotency key.
		_, _ = io.Copy(io.Discard, resp.Body)
		return outbox.Succeeded(u.ID), nil
	default:
		return outbox.Failed(u.ID, errorText(resp)), nil
	}
}

func (d *Deliverer) newRequest(ctx context.Context, endpoint string, body *os.File, u *outbox.Upload) (*http.Request, error) {
	url := d.config.BaseURL + "/" + strings.TrimLeft(endpoint, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errors.NewError(errors.CodeDelivery, "failed to create request", err)
	}

	if info, err := body.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", d.config.UserAgent)
	req.Header.Set(HeaderIdempotencyKey, u.ID)
	req.Header.Set(HeaderRetryCount, strconv.Itoa(u.RetryCount))
	for k, v := range u.Metadata {
		req.Header.Set(HeaderMetadataPrefix+k, v)
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}

	return req, nil
}

// errorText summarizes a failed response as "HTTP <code>: <body>".
func errorText(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)
}
