// Package health checks that a locally served inference endpoint answers
// HTTP requests, retrying until it does or a deadline elapses.
package health

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"labrunner/internal/lab"
	"labrunner/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryInterval  = time.Second
	defaultRequestTimeout = 5 * time.Second
)

// ServiceURL is the address an inference service listening on port answers on.
func ServiceURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// Prober issues GET requests until one returns a 2xx status.
type Prober struct {
	interval       time.Duration
	requestTimeout time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithRetryInterval sets the fixed delay between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Prober) { p.interval = d }
}

// WithRequestTimeout bounds a single attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Prober) { p.requestTimeout = d }
}

// NewProber creates a new Prober.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		interval:       defaultRetryInterval,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe retries GET url until a 2xx response or until timeout elapses.
// Network errors and non-2xx responses are both retryable. Exhausting the
// timeout yields a *lab.TimeoutError wrapping the last failure.
func (p *Prober) Probe(ctx context.Context, url string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{}
	client.HTTPClient.Timeout = p.requestTimeout
	client.RetryMax = math.MaxInt32
	client.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return p.interval
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			lastErr = err
			return true, nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return false, nil
		}
		lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return true, nil
	}

	req, err := retryablehttp.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		logging.Debug("Health", "%s answered with status %d", url, resp.StatusCode)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if probeCtx.Err() != nil {
		return &lab.TimeoutError{
			What:    fmt.Sprintf("GET %s to succeed", url),
			Timeout: timeout,
			LastErr: lastErr,
		}
	}
	return fmt.Errorf("health check of %s failed: %w", url, err)
}

// leveledLogger routes retryablehttp's own logging into pkg/logging.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.Debug("Health", "%s %v", msg, keysAndValues)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("Health", "%s %v", msg, keysAndValues)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.Debug("Health", "%s %v", msg, keysAndValues)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Debug("Health", "%s %v", msg, keysAndValues)
}
