package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/events"
	"github.com/anvay/backend-dinetab/internal/obs"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
	"github.com/anvay/backend-dinetab/internal/upstream"
)

// Intervals holds the status-dependent polling cadence.
type Intervals struct {
	Pending   time.Duration
	Confirmed time.Duration
	Active    time.Duration
}

// DefaultIntervals matches the cadence used by the dine-in surfaces: slow
// while the kitchen has not picked up the order, fast once food is moving.
var DefaultIntervals = Intervals{
	Pending:   15 * time.Second,
	Confirmed: 10 * time.Second,
	Active:    5 * time.Second,
}

// For returns the polling interval for the given status, or zero when no
// further polling should happen.
func (iv Intervals) For(s status.Status) time.Duration {
	if status.IsTerminal(s) {
		return 0
	}
	switch s {
	case status.Pending:
		return iv.Pending
	case status.Confirmed:
		return iv.Confirmed
	default:
		return iv.Active
	}
}

// UpdateFunc receives every accepted batch snapshot, including a late
// in-flight response observed after the entry stopped.
type UpdateFunc func(batch tab.OrderBatch)

// FetchFunc loads the current batch state from the upstream.
type FetchFunc func(ctx context.Context, batchID string) (tab.OrderBatch, error)

// Config wires a Tracker.
type Config struct {
	Fetch     FetchFunc
	Intervals Intervals
	// Ceiling bounds total tracking time per batch regardless of status so
	// abandoned sessions stop consuming upstream capacity.
	Ceiling time.Duration
	Logger  zerolog.Logger
	Bus     *events.Bus
	Now     func() time.Time
}

// Tracker polls batch state with a status-dependent interval per tracked
// batch. Each batch runs its own timer; visibility gates all of them.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	visible bool
}

type entry struct {
	id       string
	onUpdate UpdateFunc
	flow     status.Flow
	status   status.Status
	started  time.Time
	timer    *time.Timer
	seq      uint64
	applied  uint64
	stopped  bool
	// waiting marks an entry whose next fetch is deferred until the surface
	// becomes visible again.
	waiting bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a Tracker. Fetch is required.
func New(cfg Config) *Tracker {
	if cfg.Fetch == nil {
		panic("tracker: Fetch is required")
	}
	if cfg.Intervals == (Intervals{}) {
		cfg.Intervals = DefaultIntervals
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		cfg:     cfg,
		entries: make(map[string]*entry),
		visible: true,
	}
}

// Start begins tracking the batch and performs one immediate fetch. Starting
// an already-tracked batch replaces its update callback and leaves the
// schedule untouched.
func (t *Tracker) Start(ctx context.Context, batchID string, flow status.Flow, onUpdate UpdateFunc) error {
	if batchID == "" {
		return errors.New("tracker: batch id required")
	}

	t.mu.Lock()
	if e, ok := t.entries[batchID]; ok && !e.stopped {
		e.onUpdate = onUpdate
		t.mu.Unlock()
		return nil
	}
	entryCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{
		id:       batchID,
		onUpdate: onUpdate,
		flow:     flow,
		started:  t.cfg.Now(),
		ctx:      entryCtx,
		cancel:   cancel,
	}
	t.entries[batchID] = e
	if obs.TrackerActive != nil {
		obs.TrackerActive.Inc()
	}
	if !t.visible {
		e.waiting = true
		t.mu.Unlock()
		return nil
	}
	t.fetchLocked(e)
	t.mu.Unlock()
	return nil
}

// Stop tears down tracking for the batch. Stopping an unknown or
// already-stopped batch is a no-op.
func (t *Tracker) Stop(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[batchID]
	if !ok {
		return
	}
	t.stopLocked(e, "manual")
}

// IsActive reports whether the batch is currently tracked.
func (t *Tracker) IsActive(batchID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[batchID]
	return ok && !e.stopped
}

// ActiveCount returns the number of tracked batches.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// SetVisible gates polling on the consuming surface's visibility. Hiding
// suspends every timer; showing performs one immediate fetch for every
// suspended entry.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.visible == visible {
		return
	}
	t.visible = visible

	if !visible {
		for _, e := range t.entries {
			if e.stopped {
				continue
			}
			if e.timer != nil {
				e.timer.Stop()
				e.timer = nil
			}
			e.waiting = true
		}
		return
	}
	for _, e := range t.entries {
		if e.stopped || !e.waiting {
			continue
		}
		e.waiting = false
		t.fetchLocked(e)
	}
}

// Shutdown stops every entry. Used on process teardown.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		t.stopLocked(e, "manual")
	}
}

// fetchLocked launches one fetch attempt for the entry. Caller holds t.mu.
func (t *Tracker) fetchLocked(e *entry) {
	if t.ceilingReachedLocked(e) {
		return
	}
	e.seq++
	seq := e.seq
	go t.fetch(e, seq)
}

func (t *Tracker) fetch(e *entry, seq uint64) {
	batch, err := t.cfg.Fetch(e.ctx, e.id)

	t.mu.Lock()
	if err != nil {
		t.onFetchError(e, err)
		t.mu.Unlock()
		return
	}
	if seq <= e.applied {
		// A newer response already landed; discard the stale one.
		t.countPoll("stale")
		t.mu.Unlock()
		return
	}
	e.applied = seq

	prev := e.status
	next := batch.Status
	if !status.Newer(prev, next, e.flow) {
		next = prev
		batch.Status = prev
	}
	changed := next != prev
	e.status = next

	stopped := e.stopped
	onUpdate := e.onUpdate
	if changed {
		t.countPoll("updated")
	} else {
		t.countPoll("unchanged")
	}

	if !stopped {
		if status.IsTerminal(next) {
			t.stopLocked(e, "terminal")
		} else {
			t.scheduleLocked(e)
		}
	}
	t.mu.Unlock()

	// Callbacks run outside the lock. A late response after Stop is still
	// delivered for display; it was just never rescheduled.
	if onUpdate != nil {
		onUpdate(batch)
	}
	if changed && t.cfg.Bus != nil {
		t.cfg.Bus.Publish(context.Background(), events.TopicBatchStatusChanged, e.id, events.BatchStatusChanged{
			BatchID: e.id,
			From:    string(prev),
			To:      string(next),
		})
	}
}

// onFetchError handles a failed fetch. Caller holds t.mu.
func (t *Tracker) onFetchError(e *entry, err error) {
	if e.stopped {
		return
	}
	if errors.Is(err, upstream.ErrNotFound) {
		t.countPoll("not_found")
		t.cfg.Logger.Warn().Str("batch_id", e.id).Msg("tracker_batch_vanished")
		t.stopLocked(e, "not_found")
		return
	}
	// Transient failure. The upstream client owns retry policy within one
	// call; here we simply wait for the next tick.
	t.countPoll("error")
	t.cfg.Logger.Warn().Err(err).Str("batch_id", e.id).Msg("tracker_fetch_failed")
	t.scheduleLocked(e)
}

// scheduleLocked arms the next poll timer. Caller holds t.mu.
func (t *Tracker) scheduleLocked(e *entry) {
	if e.stopped {
		return
	}
	// Overlapping fetches (a visibility resume racing an in-flight poll) each
	// land here in turn; only the newest response may own the timeline, so any
	// timer armed by an earlier response is disarmed first.
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !t.visible {
		e.waiting = true
		return
	}
	if t.ceilingReachedLocked(e) {
		return
	}
	d := t.cfg.Intervals.For(e.status)
	if d <= 0 {
		t.stopLocked(e, "terminal")
		return
	}
	e.timer = time.AfterFunc(d, func() { t.tick(e.id) })
}

func (t *Tracker) tick(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[batchID]
	if !ok || e.stopped {
		return
	}
	e.timer = nil
	if !t.visible {
		e.waiting = true
		return
	}
	t.fetchLocked(e)
}

// ceilingReachedLocked force-stops entries older than the wall-clock ceiling.
// Caller holds t.mu.
func (t *Tracker) ceilingReachedLocked(e *entry) bool {
	if t.cfg.Now().Sub(e.started) < t.cfg.Ceiling {
		return false
	}
	t.cfg.Logger.Info().Str("batch_id", e.id).Dur("ceiling", t.cfg.Ceiling).Msg("tracker_ceiling_reached")
	t.stopLocked(e, "ceiling")
	return true
}

// stopLocked cancels the entry's timer and removes it. Caller holds t.mu.
// Idempotent.
func (t *Tracker) stopLocked(e *entry, cause string) {
	if e.stopped {
		return
	}
	e.stopped = true
	e.waiting = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.cancel()
	delete(t.entries, e.id)
	if obs.TrackerActive != nil {
		obs.TrackerActive.Dec()
	}
	if obs.TrackerStoppedTotal != nil {
		obs.TrackerStoppedTotal.WithLabelValues(cause).Inc()
	}
	if t.cfg.Bus != nil {
		id := e.id
		// Published off the lock path; handlers run synchronously.
		go t.cfg.Bus.Publish(context.Background(), events.TopicTrackingStopped, id, events.TrackingStopped{
			BatchID: id,
			Cause:   cause,
		})
	}
}

func (t *Tracker) countPoll(result string) {
	if obs.TrackerPollsTotal != nil {
		obs.TrackerPollsTotal.WithLabelValues(result).Inc()
	}
}
