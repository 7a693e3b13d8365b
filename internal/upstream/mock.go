package upstream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/menu"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
)

// Mock is an in-memory Client for local development and tests. Function
// fields override individual operations; unset fields fall back to a simple
// stateful default.
type Mock struct {
	mu      sync.Mutex
	batches map[string]tab.OrderBatch

	FetchBatchFn       func(ctx context.Context, batchID string) (tab.OrderBatch, error)
	FetchCatalogFn     func(ctx context.Context, restaurantID string) (menu.Catalog, error)
	FetchTaxSettingsFn func(ctx context.Context, restaurantID string) (billing.TaxSettings, error)
	SubmitOrderFn      func(ctx context.Context, req SubmitRequest) (tab.OrderBatch, error)
	CancelBatchFn      func(ctx context.Context, batchID, reason string) (tab.OrderBatch, error)
	OpenTabFn          func(ctx context.Context, req OpenTabRequest) (tab.Tab, error)
	CloseTabFn         func(ctx context.Context, tabID string) error

	Menu menu.Catalog
	Tax  billing.TaxSettings
}

var _ Client = (*Mock)(nil)

// NewMock returns an empty mock client.
func NewMock() *Mock {
	return &Mock{batches: make(map[string]tab.OrderBatch)}
}

// Seed stores a batch so later FetchBatch calls return it.
func (m *Mock) Seed(batch tab.OrderBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batches == nil {
		m.batches = make(map[string]tab.OrderBatch)
	}
	m.batches[batch.ID] = batch
}

func (m *Mock) FetchBatch(ctx context.Context, batchID string) (tab.OrderBatch, error) {
	if m.FetchBatchFn != nil {
		return m.FetchBatchFn(ctx, batchID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return tab.OrderBatch{}, ErrNotFound
	}
	return batch, nil
}

func (m *Mock) FetchCatalog(ctx context.Context, restaurantID string) (menu.Catalog, error) {
	if m.FetchCatalogFn != nil {
		return m.FetchCatalogFn(ctx, restaurantID)
	}
	out := m.Menu
	out.RestaurantID = restaurantID
	return out, nil
}

func (m *Mock) FetchTaxSettings(ctx context.Context, restaurantID string) (billing.TaxSettings, error) {
	if m.FetchTaxSettingsFn != nil {
		return m.FetchTaxSettingsFn(ctx, restaurantID)
	}
	return m.Tax, nil
}

func (m *Mock) SubmitOrder(ctx context.Context, req SubmitRequest) (tab.OrderBatch, error) {
	if m.SubmitOrderFn != nil {
		return m.SubmitOrderFn(ctx, req)
	}
	batch := tab.OrderBatch{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		TabID:        req.TabID,
		Items:        req.Items,
		Subtotal:     req.Subtotal,
		GrandTotal:   req.GrandTotal,
		Status:       status.Pending,
		Flow:         status.Flow(req.Flow),
	}
	m.Seed(batch)
	return batch, nil
}

func (m *Mock) CancelBatch(ctx context.Context, batchID, reason string) (tab.OrderBatch, error) {
	if m.CancelBatchFn != nil {
		return m.CancelBatchFn(ctx, batchID, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return tab.OrderBatch{}, ErrNotFound
	}
	if !status.CanUserCancel(batch.Status) {
		return tab.OrderBatch{}, ErrTooLateToCancel
	}
	batch.Status = status.Cancelled
	batch.Reason = reason
	m.batches[batchID] = batch
	return batch, nil
}

func (m *Mock) OpenTab(ctx context.Context, req OpenTabRequest) (tab.Tab, error) {
	if m.OpenTabFn != nil {
		return m.OpenTabFn(ctx, req)
	}
	return tab.Tab{
		ID:      uuid.NewString(),
		TableID: req.TableID,
		Name:    req.Name,
		Pax:     req.Pax,
	}, nil
}

func (m *Mock) CloseTab(ctx context.Context, tabID string) error {
	if m.CloseTabFn != nil {
		return m.CloseTabFn(ctx, tabID)
	}
	return nil
}
