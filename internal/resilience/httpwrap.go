package resilience

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a circuit breaker and bounded retries
// for idempotent requests.
type HTTPClient struct {
	Client     *http.Client
	Breaker    *Breaker
	Target     string
	MaxRetries int
	RetryBase  time.Duration
	JitterPct  float64
}

// NewHTTPClient builds an HTTPClient with sane defaults for the given target.
func NewHTTPClient(client *http.Client, breaker *Breaker, target string) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if breaker == nil {
		breaker = NewBreaker(5, 0.5, 30*time.Second)
	}
	breaker.WithTarget(target)
	return &HTTPClient{
		Client:     client,
		Breaker:    breaker,
		Target:     target,
		MaxRetries: 2,
		RetryBase:  200 * time.Millisecond,
		JitterPct:  0.2,
	}
}

// Do executes the request through the breaker. Idempotent requests (GET,
// HEAD) are retried on transport errors and 5xx responses with exponential
// backoff. The request body must be replayable via GetBody for retries of
// non-GET requests; without it no retry is attempted.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !c.Breaker.Allow(ctx) {
		return nil, ErrOpenCircuit
	}

	attempts := 1
	if c.retryable(req) {
		attempts += c.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := rewindBody(req); err != nil {
				break
			}
			if UpstreamRetriesTotal != nil {
				UpstreamRetriesTotal.WithLabelValues(c.targetLabel()).Inc()
			}
			if err := sleepCtx(ctx, Backoff(c.RetryBase, attempt-1, c.JitterPct)); err != nil {
				return nil, err
			}
		}

		resp, err := c.Client.Do(req)
		if err != nil {
			lastErr = err
			c.Breaker.Report(ctx, false)
			continue
		}

		if resp.StatusCode >= 500 {
			c.Breaker.Report(ctx, false)
			if attempt < attempts {
				drain(resp)
				continue
			}
			return resp, nil
		}

		c.Breaker.Report(ctx, true)
		return resp, nil
	}
	return nil, lastErr
}

func (c *HTTPClient) retryable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return req.Body == nil || req.GetBody != nil
	}
}

func (c *HTTPClient) targetLabel() string {
	if c.Target == "" {
		return "upstream"
	}
	return c.Target
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ReplayableBody builds a request body whose GetBody is set so retries can
// rewind it.
func ReplayableBody(req *http.Request, payload []byte) {
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.ContentLength = int64(len(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
}
