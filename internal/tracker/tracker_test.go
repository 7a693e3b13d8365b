package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/events"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
	"github.com/anvay/backend-dinetab/internal/upstream"
)

func fastIntervals() Intervals {
	return Intervals{
		Pending:   5 * time.Millisecond,
		Confirmed: 5 * time.Millisecond,
		Active:    5 * time.Millisecond,
	}
}

func newTestTracker(fetch FetchFunc) *Tracker {
	return New(Config{
		Fetch:     fetch,
		Intervals: fastIntervals(),
		Ceiling:   time.Hour,
		Logger:    zerolog.Nop(),
	})
}

func TestTerminalStatusStopsPolling(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		atomic.AddInt64(&fetches, 1)
		return tab.OrderBatch{ID: batchID, Status: status.Delivered}, nil
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got != 1 {
		t.Fatalf("fetches = %d, want exactly 1 after terminal status", got)
	}
	if tr.IsActive("batch-1") {
		t.Fatal("entry should be removed after terminal status")
	}
}

func TestPollsUntilTerminal(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		n := atomic.AddInt64(&fetches, 1)
		s := status.Preparing
		if n >= 3 {
			s = status.Delivered
		}
		return tab.OrderBatch{ID: batchID, Status: s}, nil
	})

	var mu sync.Mutex
	var seen []status.Status
	err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, func(b tab.OrderBatch) {
		mu.Lock()
		seen = append(seen, b.Status)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got != 3 {
		t.Fatalf("fetches = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[2] != status.Delivered {
		t.Fatalf("seen = %v, want final delivered", seen)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		return tab.OrderBatch{ID: batchID, Status: status.Pending}, nil
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	tr.Stop("batch-1")
	tr.Stop("batch-1")
	tr.Stop("never-started")
	if tr.IsActive("batch-1") {
		t.Fatal("expected inactive after stop")
	}
}

func TestVisibilitySuspendsAndResumes(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		atomic.AddInt64(&fetches, 1)
		return tab.OrderBatch{ID: batchID, Status: status.Preparing}, nil
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	tr.SetVisible(false)
	time.Sleep(10 * time.Millisecond)
	suspended := atomic.LoadInt64(&fetches)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got != suspended {
		t.Fatalf("fetches advanced from %d to %d while hidden", suspended, got)
	}

	tr.SetVisible(true)
	time.Sleep(10 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got <= suspended {
		t.Fatal("expected an immediate fetch on becoming visible")
	}
}

func TestStartWhileHiddenDefersFirstFetch(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		atomic.AddInt64(&fetches, 1)
		return tab.OrderBatch{ID: batchID, Status: status.Pending}, nil
	})

	tr.SetVisible(false)
	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got != 0 {
		t.Fatalf("fetches = %d while hidden, want 0", got)
	}

	tr.SetVisible(true)
	time.Sleep(10 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got == 0 {
		t.Fatal("expected fetch after becoming visible")
	}
}

func TestVisibilityToggleDuringFetchKeepsSingleTimeline(t *testing.T) {
	interval := 40 * time.Millisecond
	var fetches int64
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	tr := New(Config{
		Fetch: func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
			if atomic.AddInt64(&fetches, 1) <= 2 {
				started <- struct{}{}
				<-release
			}
			return tab.OrderBatch{ID: batchID, Status: status.Preparing}, nil
		},
		Intervals: Intervals{Pending: interval, Confirmed: interval, Active: interval},
		Ceiling:   time.Hour,
		Logger:    zerolog.Nop(),
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	// Backgrounding while the first fetch is still in flight makes the resume
	// fire a second, overlapping fetch. Both responses land and reschedule;
	// only one timer may survive.
	tr.SetVisible(false)
	tr.SetVisible(true)
	<-started
	close(release)

	time.Sleep(10 * interval)
	tr.Stop("batch-1")

	// A single timeline lands roughly one fetch per interval plus the two
	// overlapped ones; a duplicated timeline doubles that.
	if got := atomic.LoadInt64(&fetches); got > 16 {
		t.Fatalf("fetches = %d over ten intervals, polling cadence duplicated", got)
	} else if got < 6 {
		t.Fatalf("fetches = %d over ten intervals, polling stalled", got)
	}
}

func TestNotFoundStopPublishesCleanupEvent(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var stops []events.TrackingStopped
	bus.Subscribe(events.TopicTrackingStopped, func(_ context.Context, ev events.Event) {
		if payload, ok := ev.Payload.(events.TrackingStopped); ok {
			mu.Lock()
			stops = append(stops, payload)
			mu.Unlock()
		}
	})

	tr := New(Config{
		Fetch: func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
			return tab.OrderBatch{}, upstream.ErrNotFound
		},
		Intervals: fastIntervals(),
		Ceiling:   time.Hour,
		Logger:    zerolog.Nop(),
		Bus:       bus,
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(stops) != 1 || stops[0].Cause != "not_found" || stops[0].BatchID != "batch-1" {
		t.Fatalf("stops = %+v, want one not_found stop for batch-1", stops)
	}
}

func TestCeilingForceStops(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	current := now

	tr := New(Config{
		Fetch: func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
			return tab.OrderBatch{ID: batchID, Status: status.Preparing}, nil
		},
		Intervals: fastIntervals(),
		Ceiling:   time.Hour,
		Logger:    zerolog.Nop(),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return current
		},
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !tr.IsActive("batch-1") {
		t.Fatal("expected active before ceiling")
	}

	mu.Lock()
	current = now.Add(2 * time.Hour)
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	if tr.IsActive("batch-1") {
		t.Fatal("expected force-stop after ceiling elapsed")
	}
}

func TestNotFoundStopsOnlyThatBatch(t *testing.T) {
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		if batchID == "gone" {
			return tab.OrderBatch{}, upstream.ErrNotFound
		}
		return tab.OrderBatch{ID: batchID, Status: status.Preparing}, nil
	})

	if err := tr.Start(context.Background(), "gone", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Start(context.Background(), "alive", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if tr.IsActive("gone") {
		t.Fatal("vanished batch should stop tracking")
	}
	if !tr.IsActive("alive") {
		t.Fatal("sibling batch must keep tracking")
	}
}

func TestTransientErrorRetriesNextTick(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		if atomic.AddInt64(&fetches, 1) == 1 {
			return tab.OrderBatch{}, errors.New("connection reset")
		}
		return tab.OrderBatch{ID: batchID, Status: status.Delivered}, nil
	})

	if err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&fetches); got != 2 {
		t.Fatalf("fetches = %d, want 2 (one failure, one success)", got)
	}
}

func TestBackwardStatusDiscarded(t *testing.T) {
	var fetches int64
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		n := atomic.AddInt64(&fetches, 1)
		switch n {
		case 1:
			return tab.OrderBatch{ID: batchID, Status: status.Preparing}, nil
		case 2:
			return tab.OrderBatch{ID: batchID, Status: status.Pending}, nil
		default:
			return tab.OrderBatch{ID: batchID, Status: status.Delivered}, nil
		}
	})

	var mu sync.Mutex
	var seen []status.Status
	err := tr.Start(context.Background(), "batch-1", status.FlowDineIn, func(b tab.OrderBatch) {
		mu.Lock()
		seen = append(seen, b.Status)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 {
		t.Fatalf("seen = %v, want three updates", seen)
	}
	if seen[1] != status.Preparing {
		t.Fatalf("regressed status should be replaced with last known, got %v", seen)
	}
	if seen[len(seen)-1] != status.Delivered {
		t.Fatalf("seen = %v, want delivered last", seen)
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	tr := newTestTracker(func(ctx context.Context, batchID string) (tab.OrderBatch, error) {
		return tab.OrderBatch{ID: batchID, Status: status.Pending}, nil
	})

	for _, id := range []string{"a", "b", "c"} {
		if err := tr.Start(context.Background(), id, status.FlowDineIn, nil); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	tr.Shutdown()
	if got := tr.ActiveCount(); got != 0 {
		t.Fatalf("active = %d after shutdown, want 0", got)
	}
}

func TestIntervalsFor(t *testing.T) {
	iv := DefaultIntervals
	if iv.For(status.Pending) != 15*time.Second {
		t.Fatal("pending should use the slow interval")
	}
	if iv.For(status.Confirmed) != 10*time.Second {
		t.Fatal("confirmed should use the middle interval")
	}
	if iv.For(status.Preparing) != 5*time.Second || iv.For(status.ReadyForPickup) != 5*time.Second {
		t.Fatal("active statuses should use the fast interval")
	}
	if iv.For(status.Delivered) != 0 || iv.For(status.Cancelled) != 0 {
		t.Fatal("terminal statuses must not poll")
	}
}
