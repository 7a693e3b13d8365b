package tab

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound indicates the requested table, tab or batch is unknown.
	ErrNotFound = errors.New("tab: not found")
	// ErrTabNotEmpty is returned when closing a tab that still has batches.
	ErrTabNotEmpty = errors.New("tab: tab has open orders")
	// ErrAmbiguousTab is returned when a table has more than one candidate
	// billing target and the caller did not choose one.
	ErrAmbiguousTab = errors.New("tab: multiple tabs open, explicit choice required")
	// ErrInvalidInput is returned for malformed open-tab parameters.
	ErrInvalidInput = errors.New("tab: invalid input")
)

// Registry is the engine's in-memory working set of tables, tabs and batch
// records. Each fetch writes only its own batch record; every aggregate the
// registry hands out is derived at read time.
type Registry struct {
	mu      sync.RWMutex
	tables  map[string]*Table
	tabs    map[string]*Tab
	batches map[string]OrderBatch
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:  make(map[string]*Table),
		tabs:    make(map[string]*Tab),
		batches: make(map[string]OrderBatch),
	}
}

// UpsertTable records a table's seating state. A zero capacity on the update
// keeps the previously known capacity.
func (r *Registry) UpsertTable(t Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tables[t.ID]
	if !ok {
		stored := t
		r.tables[t.ID] = &stored
		return
	}
	if t.Capacity > 0 {
		existing.Capacity = t.Capacity
	}
	existing.Occupied = t.Occupied
}

// Table returns a snapshot of the table.
func (r *Registry) Table(tableID string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[tableID]
	if !ok {
		return Table{}, false
	}
	return *t, true
}

// AdoptTab records a tab created by the upstream collaborator.
func (r *Registry) AdoptTab(t Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := t
	r.tabs[t.ID] = &stored
	table, ok := r.tables[t.TableID]
	if !ok {
		table = &Table{ID: t.TableID}
		r.tables[t.TableID] = table
	}
	for _, id := range table.TabIDs {
		if id == t.ID {
			return
		}
	}
	table.TabIDs = append(table.TabIDs, t.ID)
}

// CloseTab removes an empty tab. A tab with member batches cannot be closed:
// force-closing would orphan in-flight kitchen orders.
func (r *Registry) CloseTab(tabID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return ErrNotFound
	}
	if !t.Empty() {
		return ErrTabNotEmpty
	}
	delete(r.tabs, tabID)
	if table, ok := r.tables[t.TableID]; ok {
		for i, id := range table.TabIDs {
			if id == tabID {
				table.TabIDs = append(table.TabIDs[:i], table.TabIDs[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Tab returns a snapshot of the tab.
func (r *Registry) Tab(tabID string) (Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return Tab{}, false
	}
	snap := *t
	snap.BatchIDs = append([]string(nil), t.BatchIDs...)
	return snap, true
}

// AttachBatch adds a batch to its tab's member set and records the batch. The
// tab becomes non-closable the instant it gains its first member.
func (r *Registry) AttachBatch(tabID string, b OrderBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return ErrNotFound
	}
	b.TabID = tabID
	b.TableID = t.TableID
	r.batches[b.ID] = b
	for _, id := range t.BatchIDs {
		if id == b.ID {
			return nil
		}
	}
	t.BatchIDs = append(t.BatchIDs, b.ID)
	return nil
}

// RecordBatch stores the latest observed state for one batch. Concurrent
// fetches for sibling batches each write only their own record.
func (r *Registry) RecordBatch(b OrderBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.batches[b.ID]; ok {
		if b.TabID == "" {
			b.TabID = existing.TabID
		}
		if b.TableID == "" {
			b.TableID = existing.TableID
		}
	}
	r.batches[b.ID] = b
}

// Batch returns the last recorded state of a batch.
func (r *Registry) Batch(batchID string) (OrderBatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[batchID]
	return b, ok
}

// RemoveBatch drops a batch record, e.g. after upstream reports it gone.
func (r *Registry) RemoveBatch(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, batchID)
}

// RecordPendingGroup notes an order group on a table that is not attached to
// any tab yet.
func (r *Registry) RecordPendingGroup(tableID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.tables[tableID]
	if !ok {
		table = &Table{ID: tableID}
		r.tables[tableID] = table
	}
	for _, id := range table.PendingGroups {
		if id == groupID {
			return
		}
	}
	table.PendingGroups = append(table.PendingGroups, groupID)
}

// ActiveSelection resolves "the" billing target for a table. With exactly one
// candidate (one tab or one pending group) it auto-selects; with several the
// caller must choose explicitly so the wrong guest is never billed.
func (r *Registry) ActiveSelection(tableID string) (Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.tables[tableID]
	if !ok {
		return Selection{}, ErrNotFound
	}
	candidates := len(table.TabIDs) + len(table.PendingGroups)
	switch {
	case candidates == 0:
		return Selection{}, ErrNotFound
	case candidates > 1:
		return Selection{}, ErrAmbiguousTab
	case len(table.TabIDs) == 1:
		return Selection{TabID: table.TabIDs[0]}, nil
	default:
		return Selection{GroupID: table.PendingGroups[0]}, nil
	}
}

// BillForTab derives the combined bill for the tab from its member batches.
// The result is recomputed on every call; nothing is cached.
func (r *Registry) BillForTab(tabID string) (BillView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return BillView{}, ErrNotFound
	}
	batches := make([]OrderBatch, 0, len(t.BatchIDs))
	for _, id := range t.BatchIDs {
		if b, ok := r.batches[id]; ok {
			batches = append(batches, b)
		}
	}
	return AggregateBill(*t, batches), nil
}
