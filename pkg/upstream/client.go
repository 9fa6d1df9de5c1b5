// Package upstream provides the network transport from the gateway to the
// CivicSense origin, with error classification, metrics and optional retry.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsense_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicsense_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsense_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// Origin is the base URL requests are sent to (scheme and host are
	// rewritten). Empty keeps each request's own URL.
	Origin string

	// UserAgent is set on requests that carry none.
	UserAgent string

	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration

	// Retry configures retries for idempotent requests.
	Retry RetryConfig

	// Transport performs the actual round trip (default: http.DefaultTransport).
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration without timeout or retries.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:    origin,
		UserAgent: "civicsense-gateway/0.1.0",
		Retry:     DefaultRetryConfig(),
	}
}

// Client is an http.RoundTripper to the origin.
type Client struct {
	transport http.RoundTripper
	origin    *url.URL
	config    Config
	logger    zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	var origin *url.URL
	if cfg.Origin != "" {
		u, err := url.Parse(strings.TrimRight(cfg.Origin, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse origin: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("origin must be an absolute URL (got %q)", cfg.Origin)
		}
		origin = u
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		transport: transport,
		origin:    origin,
		config:    cfg,
		logger:    log.With().Str("component", "upstream").Logger(),
	}, nil
}

// RoundTrip sends the request to the origin.
//
// Any HTTP response, whatever its status, is returned as a response. An
// error is returned only when no response was obtained; it is an *Error of
// class network, possibly wrapped in ErrRetryExhausted.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	retry := c.config.Retry
	if !isIdempotent(req.Method) || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
		retry.MaxAttempts = 1
	}

	var resp *http.Response
	err := retryWithBackoff(ctx, retry, func(attempt int, last bool) (ErrorClass, error) {
		out, err := c.prepare(req, attempt)
		if err != nil {
			return ErrorClassClient, &Error{ErrorClass: ErrorClassClient, Message: "invalid request", Err: err}
		}

		r, err := c.send(out)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("Upstream request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, &Error{
				ErrorClass: ErrorClassNetwork,
				Message:    "origin unreachable",
				Err:        err,
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()
		class := Classify(r.StatusCode)
		if class != "" {
			errorsTotal.WithLabelValues(string(class)).Inc()
		}

		// Retry 5xx unless this is the final attempt; the last 5xx is
		// handed to the caller like any other response.
		if class == ErrorClassServer && !last {
			r.Body.Close()
			return class, &Error{
				StatusCode: r.StatusCode,
				ErrorClass: class,
				Message:    r.Status,
			}
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Upstream request completed")

	return resp, nil
}

// prepare clones req for one attempt and points it at the origin.
func (c *Client) prepare(req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(req.Context())

	if attempt > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("reset request body: %w", err)
		}
		out.Body = body
	}

	if c.origin != nil {
		out.URL.Scheme = c.origin.Scheme
		out.URL.Host = c.origin.Host
		if c.origin.Path != "" && !strings.HasPrefix(out.URL.Path, c.origin.Path+"/") {
			out.URL.Path = c.origin.Path + out.URL.Path
		}
		out.Host = c.origin.Host
	}
	// Server-side fields must be empty on client requests
	out.RequestURI = ""

	if out.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		out.Header.Set("User-Agent", c.config.UserAgent)
	}

	return out, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.config.Timeout <= 0 {
		return c.transport.RoundTrip(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), c.config.Timeout)
	resp, err := c.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Classify categorizes an HTTP status. Success and redirects return "".
func Classify(statusCode int) ErrorClass {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func isIdempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
