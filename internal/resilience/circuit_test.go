package resilience

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(4, 0.5, time.Minute)

	b.Report(ctx, true)
	b.Report(ctx, false)
	b.Report(ctx, false)
	if !b.Allow(ctx) {
		t.Fatal("breaker should still be closed below min requests")
	}
	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("breaker should be open after failure ratio exceeded")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(2, 0.5, 10*time.Millisecond)

	b.Report(ctx, false)
	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("expected open breaker")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow(ctx) {
		t.Fatal("expected half-open probe to be allowed")
	}
	b.Report(ctx, true)
	if !b.Allow(ctx) {
		t.Fatal("expected breaker closed after successful probe")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(2, 0.5, 10*time.Millisecond)

	b.Report(ctx, false)
	b.Report(ctx, false)
	time.Sleep(20 * time.Millisecond)
	if !b.Allow(ctx) {
		t.Fatal("expected half-open probe")
	}
	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("expected breaker to reopen after failed probe")
	}
}

func TestBackoffGrows(t *testing.T) {
	base := 100 * time.Millisecond
	first := Backoff(base, 1, 0)
	third := Backoff(base, 3, 0)
	if first != base {
		t.Fatalf("first attempt = %v, want %v", first, base)
	}
	if third != 4*base {
		t.Fatalf("third attempt = %v, want %v", third, 4*base)
	}
}

func TestHTTPClientRetriesIdempotentGET(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.Client(), NewBreaker(100, 0.9, time.Minute), "test")
	c.RetryBase = time.Millisecond

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestHTTPClientRejectsWhenOpen(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(1, 0.5, time.Minute)
	b.Report(ctx, false)

	c := NewHTTPClient(http.DefaultClient, b, "test")
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:0", nil)
	if _, err := c.Do(req); err != ErrOpenCircuit {
		t.Fatalf("err = %v, want ErrOpenCircuit", err)
	}
}
