package police

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// limitedTransport makes every round trip wait for a token from the shared
// limiter, so retries are paced the same as first attempts. Once admitted,
// an attempt has timeout to finish, body included.
type limitedTransport struct {
	limiter   *rate.Limiter
	transport http.RoundTripper
	timeout   time.Duration
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	defer cancel()

	resp, err := t.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("round trip: %w", ctx.Err())
		}
		return nil, err
	}

	// The body is buffered while the deadline still applies, so a stalled
	// upstream surfaces here as a retryable timeout.
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read response body: %w", ctx.Err())
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// newTransport builds the underlying transport. Timeouts live here and on
// limitedTransport rather than on http.Client so that time spent queued on
// the limiter does not count against a request.
func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
}
