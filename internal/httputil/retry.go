// Package httputil wraps net/http requests with bounded retries for the
// NSSM download.
package httputil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("httputil")

// UserAgent is sent when the caller sets none.
const UserAgent = "nssm-gui"

// RetryConfig controls the retry behavior for HTTP requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFrac    float64 // ±fraction of delay to randomize (e.g. 0.3 = ±30%)
}

// DefaultRetryConfig returns the defaults used for downloads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFrac:    0.3,
	}
}

// next returns the delay after d.
func (c RetryConfig) next(d time.Duration) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d = time.Duration(float64(d) * factor)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// RetryableStatusError is returned when every attempt ended in a status
// worth retrying.
type RetryableStatusError struct {
	StatusCode int
	URL        string
}

func (e *RetryableStatusError) Error() string {
	return fmt.Sprintf("request to %s failed after retries with status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter reads a Retry-After header given in seconds. HTTP dates are
// ignored and the backoff delay applies.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Do sends the request, retrying network errors and retryable statuses.
// body is replayed on every attempt. The response of the first attempt that
// is not retried is returned; a non-2xx status is not an error.
func Do(ctx context.Context, client *http.Client, method, url string, body []byte, headers http.Header, cfg RetryConfig) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := send(ctx, client, method, url, body, headers)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			lastErr = err
		case !retryableStatus(resp.StatusCode):
			return resp, nil
		default:
			lastErr = &RetryableStatusError{StatusCode: resp.StatusCode, URL: url}
			if d, ok := retryAfter(resp); ok {
				delay = d
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
			resp.Body.Close()
		}

		if attempt >= cfg.MaxRetries {
			break
		}
		wait := applyJitter(delay, cfg.JitterFrac)
		log.Debug("retrying request", "attempt", attempt+1, "delay", wait, "url", url, logging.KeyError, lastErr.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay = cfg.next(delay)
	}

	log.Warn("all retries exhausted", "method", method, "url", url, "attempts", cfg.MaxRetries+1, logging.KeyError, lastErr.Error())
	return nil, lastErr
}

func send(ctx context.Context, client *http.Client, method, url string, body []byte, headers http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	return client.Do(req)
}

// Get is Do for a GET without a body.
func Get(ctx context.Context, client *http.Client, url string, cfg RetryConfig) (*http.Response, error) {
	return Do(ctx, client, http.MethodGet, url, nil, nil, cfg)
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jittered := time.Duration(float64(d) * (1 + frac*(2*rand.Float64()-1)))
	return max(jittered, 0)
}
