package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/circuitbreaker"
	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
)

// DatasetClient fetches and decodes the monthly temperature dataset.
type DatasetClient interface {
	FetchDataset(ctx context.Context, source string) (models.Dataset, error)
	Ping(ctx context.Context, source string) error
}

var (
	ErrInvalidSource   = errors.New("invalid dataset source")
	ErrSourceNotFound  = errors.New("dataset source not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrMalformedRecord = errors.New("malformed record")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrDatasetTooLarge = errors.New("dataset exceeds size limit")
)

// maxBodyBytes bounds the dataset document size. The reference dataset is ~150 KB.
const maxBodyBytes = 32 << 20

// HTTPDatasetClient fetches datasets over HTTP(S), or from disk for file://
// URLs and plain paths.
type HTTPDatasetClient struct {
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	maxBody        int64
}

// NewHTTPDatasetClient returns a client that makes a single attempt per fetch.
func NewHTTPDatasetClient(timeout time.Duration) (*HTTPDatasetClient, error) {
	return NewHTTPDatasetClientWithRetry(timeout, 1, 100*time.Millisecond, 2*time.Second)
}

// NewHTTPDatasetClientWithRetry returns a client that retries retryable failures
// (timeouts, 429, 5xx) up to retryAttempts total attempts with jittered
// exponential backoff.
func NewHTTPDatasetClientWithRetry(timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HTTPDatasetClient, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("dataset client timeout must be positive, got %s", timeout)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &HTTPDatasetClient{
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		maxBody:        maxBodyBytes,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream attempt with cb. Nil disables it.
func (c *HTTPDatasetClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// wire types: pointers detect fields missing from the document.
type datasetResponse struct {
	BaseTemperature *float64         `json:"baseTemperature"`
	MonthlyVariance []recordResponse `json:"monthlyVariance"`
}

type recordResponse struct {
	Year     *int     `json:"year"`
	Month    *int     `json:"month"`
	Variance *float64 `json:"variance"`
}

// FetchDataset retrieves and decodes the dataset at source.
func (c *HTTPDatasetClient) FetchDataset(ctx context.Context, source string) (models.Dataset, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.DatasetFetchRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.Dataset{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.fetchGuarded(ctx, source)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.Dataset{}, err
		}
	}

	if c.retryAttempts == 1 {
		return models.Dataset{}, lastErr
	}
	return models.Dataset{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPDatasetClient) fetchGuarded(ctx context.Context, source string) (models.Dataset, error) {
	if c.breaker == nil {
		return c.fetchOnce(ctx, source)
	}
	var ds models.Dataset
	err := c.breaker.Call(ctx, func() error {
		var err error
		ds, err = c.fetchOnce(ctx, source)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return models.Dataset{}, fmt.Errorf("%w: %s", ErrCircuitOpen, source)
	}
	return ds, err
}

func (c *HTTPDatasetClient) fetchOnce(ctx context.Context, source string) (models.Dataset, error) {
	u, err := parseSource(source)
	if err != nil {
		return models.Dataset{}, err
	}
	if u.Scheme == "file" {
		return c.readFile(source, u)
	}
	return c.callHTTP(ctx, source, u)
}

func (c *HTTPDatasetClient) callHTTP(ctx context.Context, source string, u *url.URL) (models.Dataset, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		observability.DatasetFetchesTotal.WithLabelValues("error").Inc()
		return models.Dataset{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.DatasetFetchesTotal.WithLabelValues("error").Inc()
		observability.DatasetFetchDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Dataset{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.Dataset{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.DatasetFetchesTotal.WithLabelValues(status).Inc()
	observability.DatasetFetchDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.Dataset{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return models.Dataset{}, fmt.Errorf("read response body: %w", err)
	}
	if err := c.checkSize(len(body)); err != nil {
		return models.Dataset{}, err
	}
	return decodeDataset(body, source)
}

func (c *HTTPDatasetClient) readFile(source string, u *url.URL) (models.Dataset, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	body, err := os.ReadFile(path)
	if err != nil {
		observability.DatasetFetchesTotal.WithLabelValues("error").Inc()
		if os.IsNotExist(err) {
			return models.Dataset{}, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return models.Dataset{}, fmt.Errorf("read dataset file: %w", err)
	}
	observability.DatasetFetchesTotal.WithLabelValues("success").Inc()
	if err := c.checkSize(len(body)); err != nil {
		return models.Dataset{}, err
	}
	return decodeDataset(body, source)
}

// checkSize rejects documents over the limit instead of decoding a truncated body.
func (c *HTTPDatasetClient) checkSize(n int) error {
	if int64(n) > c.maxBody {
		return fmt.Errorf("%w: more than %d bytes", ErrDatasetTooLarge, c.maxBody)
	}
	return nil
}

// parseSource accepts http(s) and file URLs; anything without a scheme is a
// filesystem path.
func parseSource(source string) (*url.URL, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSource)
	}
	if !strings.Contains(source, "://") {
		return &url.URL{Scheme: "file", Path: source}, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidSource, source)
		}
	case "file":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	return u, nil
}

// decodeDataset parses the wire document and rejects records with missing
// fields. Syntax and type errors are malformed documents too.
func decodeDataset(body []byte, source string) (models.Dataset, error) {
	var wire datasetResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wire); err != nil {
		return models.Dataset{}, fmt.Errorf("%w: parse response: %v", ErrMalformedRecord, err)
	}
	if wire.BaseTemperature == nil {
		return models.Dataset{}, fmt.Errorf("%w: baseTemperature missing", ErrMalformedRecord)
	}
	ds := models.Dataset{
		BaseTemperature: *wire.BaseTemperature,
		MonthlyVariance: make([]models.TemperatureRecord, len(wire.MonthlyVariance)),
		Source:          source,
		FetchedAt:       time.Now().UTC(),
	}
	for i, r := range wire.MonthlyVariance {
		switch {
		case r.Year == nil:
			return models.Dataset{}, fmt.Errorf("%w: record %d: year missing", ErrMalformedRecord, i)
		case r.Month == nil:
			return models.Dataset{}, fmt.Errorf("%w: record %d: month missing", ErrMalformedRecord, i)
		case r.Variance == nil:
			return models.Dataset{}, fmt.Errorf("%w: record %d: variance missing", ErrMalformedRecord, i)
		}
		ds.MonthlyVariance[i] = models.TemperatureRecord{Year: *r.Year, Month: *r.Month, Variance: *r.Variance}
	}
	return ds, nil
}

func (c *HTTPDatasetClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return true
	}

	return false
}

func (c *HTTPDatasetClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: HTTP %d", ErrSourceNotFound, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	return observability.CorrelationID(ctx)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// Ping checks that source is reachable without downloading the body. File
// sources are stat'ed.
func (c *HTTPDatasetClient) Ping(ctx context.Context, source string) error {
	u, err := parseSource(source)
	if err != nil {
		return err
	}
	if u.Scheme == "file" {
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	resp.Body.Close()
	return handleErrorResponse(resp)
}
