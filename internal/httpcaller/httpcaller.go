// Package httpcaller issues HTTP requests against pre-signed upload and
// download URLs with the fixed retry/backoff schedule used throughout the
// remote file handle (five attempts, doubling delay, no jitter).
package httpcaller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/objstore/rfile/internal/circuit"
	"github.com/objstore/rfile/pkg/errors"
	"github.com/objstore/rfile/pkg/retry"
)

// Response is the result of a successful Invoke call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// MetricsSink receives a count each time invoke retries a failed attempt.
// rfile.metricsSink's HTTPRetry satisfies this.
type MetricsSink interface {
	HTTPRetry()
}

type noopMetricsSink struct{}

func (noopMetricsSink) HTTPRetry() {}

// Caller issues retrying HTTP requests.
type Caller struct {
	client  *http.Client
	retryer *retry.Retryer
	log     *slog.Logger
	breaker *circuit.CircuitBreaker
	mtr     MetricsSink
}

// Option configures a Caller.
type Option func(*Caller)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Caller) { c.client = client }
}

// WithLogger overrides the diagnostic sink.
func WithLogger(log *slog.Logger) Option {
	return func(c *Caller) { c.log = log }
}

// WithMetrics overrides the metrics sink. Every retried attempt (one that
// failed and will be tried again) increments its HTTPRetry counter once.
func WithMetrics(m MetricsSink) Option {
	return func(c *Caller) {
		if m != nil {
			c.mtr = m
		}
	}
}

// WithCircuitBreaker wraps every Invoke call in breaker, so that once a
// run of fully retry-exhausted calls trips it open, subsequent Invoke
// calls fail immediately instead of repeating the whole retry schedule
// against a target that is known to be down.
func WithCircuitBreaker(breaker *circuit.CircuitBreaker) Option {
	return func(c *Caller) { c.breaker = breaker }
}

// New creates a Caller with the fixed backoff schedule (5 attempts with
// 2s/4s/8s/16s waits between them, no jitter).
func New(opts ...Option) *Caller {
	c := &Caller{
		client: &http.Client{},
		log:    slog.Default(),
		mtr:    noopMetricsSink{},
	}
	c.retryer = retry.New(retry.FixedBackoffConfig())
	for _, opt := range opts {
		opt(c)
	}
	c.retryer = c.retryer.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.mtr.HTTPRetry()
	})
	return c
}

// Invoke performs method against url with the given headers and body,
// retrying transport failures and non-2xx responses for at most 5 attempts. On
// exhaustion it returns a *errors.RemoteFileError with code RetryExhausted
// whose message begins with "Giving up after 5 tries".
func (c *Caller) Invoke(ctx context.Context, method, url string, headers map[string][]string, body []byte) (*Response, error) {
	if c.breaker != nil {
		var resp *Response
		err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
			r, invokeErr := c.invoke(ctx, method, url, headers, body)
			resp = r
			return invokeErr
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	return c.invoke(ctx, method, url, headers, body)
}

// invoke performs the retrying HTTP round-trip without any circuit
// breaker wrapping.
func (c *Caller) invoke(ctx context.Context, method, url string, headers map[string][]string, body []byte) (*Response, error) {
	var resp *Response
	var lastReason string
	attempts := 0

	err := c.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++

		req, reqErr := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if reqErr != nil {
			lastReason = reqErr.Error()
			return errors.NewError(errors.ErrCodeInternalError, "failed to build request").
				WithComponent("httpcaller").WithOperation(method).WithCause(reqErr)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		httpResp, doErr := c.client.Do(req)
		if doErr != nil {
			lastReason = doErr.Error()
			c.log.Warn("httpcaller: transport error", "method", method, "url", url, "attempt", attempts, "error", doErr)
			return errors.NewError(errors.ErrCodeConnectionFailed, "transport error").
				WithComponent("httpcaller").WithOperation(method).WithCause(doErr)
		}
		defer httpResp.Body.Close()

		data, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			lastReason = readErr.Error()
			return errors.NewError(errors.ErrCodeNetworkError, "failed to read response body").
				WithComponent("httpcaller").WithOperation(method).WithCause(readErr)
		}

		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			lastReason = fmt.Sprintf("status %d", httpResp.StatusCode)
			c.log.Warn("httpcaller: non-2xx response", "method", method, "url", url, "attempt", attempts, "status", httpResp.StatusCode)
			return errors.NewError(errors.ErrCodeNetworkError, lastReason).
				WithComponent("httpcaller").WithOperation(method).
				WithDetail("status_code", httpResp.StatusCode)
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       data,
		}
		return nil
	})

	if err != nil {
		return nil, errors.NewError(errors.ErrCodeRetryExhausted,
			fmt.Sprintf("Giving up after %d tries", attempts)).
			WithComponent("httpcaller").
			WithOperation(method).
			WithContext("url", url).
			WithDetail("method", method).
			WithDetail("headers", headers).
			WithDetail("header_count", len(headers)).
			WithDetail("attempts", attempts).
			WithDetail("last_failure_reason", lastReason).
			WithCause(err)
	}

	return resp, nil
}
