// Package wris fetches groundwater level series from the India-WRIS proxy.
package wris

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/httputil"
	"github.com/lox/groundwater/internal/metrics"
	"github.com/lox/groundwater/internal/models"
)

const (
	DefaultTimeout = 20 * time.Second

	// Agency is the fixed agency filter sent with every request.
	Agency = "CGWB"

	// PageSize is the only page requested; larger series are truncated by the provider.
	PageSize = 100
)

// ErrNotConfigured is returned when no provider base address is set.
var ErrNotConfigured = errors.New("groundwater provider base URL not configured")

// FetchError reports a failed fetch for one location.
type FetchError struct {
	Location string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError is a non-200 answer from a reachable provider. It describes one
// location's request, not provider health, so it does not count against the breaker.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// halfOpenRequests is how many probe requests pass while the breaker is half-open.
const halfOpenRequests = 8

// PayloadArchive keeps a copy of raw provider bodies for diagnostics.
type PayloadArchive interface {
	StoreRawPayload(ctx context.Context, location string, payload []byte) (int64, error)
}

// Client issues one request per location query. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	archive    PayloadArchive
	logger     *zap.Logger
}

// NewClient creates a provider client with a fixed request timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	settings := gobreaker.Settings{
		Name:        "wris",
		MaxRequests: halfOpenRequests,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transport failures and timeouts mean the provider is down.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.As(err, &se)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httputil.NewClientWithTimeout(timeout),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// SetArchive enables raw payload archiving.
func (c *Client) SetArchive(a PayloadArchive) {
	c.archive = a
}

// RequestURL builds the provider URL for a location query.
func (c *Client) RequestURL(q models.LocationQuery) string {
	params := url.Values{}
	params.Set("stateName", q.State)
	params.Set("districtName", q.District)
	params.Set("agencyName", Agency)
	params.Set("startdate", q.StartDate.Format(models.DateLayout))
	params.Set("enddate", q.EndDate.Format(models.DateLayout))
	params.Set("download", "false")
	params.Set("page", "0")
	params.Set("size", fmt.Sprint(PageSize))
	return c.baseURL + "/groundwater?" + params.Encode()
}

// Fetch returns the raw response body for q, or a *FetchError.
func (c *Client) Fetch(ctx context.Context, q models.LocationQuery) ([]byte, error) {
	label := q.Label()
	if c.baseURL == "" {
		return nil, &FetchError{Location: label, Err: ErrNotConfigured}
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, c.RequestURL(q))
	})
	metrics.ProviderLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		status := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "breaker_open"
		}
		metrics.ProviderCallsTotal.WithLabelValues(status).Inc()
		c.logger.Warn("groundwater fetch failed", zap.String("location", label), zap.Error(err))
		return nil, &FetchError{Location: label, Err: err}
	}
	metrics.ProviderCallsTotal.WithLabelValues("ok").Inc()

	body := out.([]byte)
	if c.archive != nil {
		if _, err := c.archive.StoreRawPayload(ctx, label, body); err != nil {
			c.logger.Warn("archive raw payload", zap.String("location", label), zap.Error(err))
		}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
