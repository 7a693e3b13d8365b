package order

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/events"
	"github.com/anvay/backend-dinetab/internal/lock"
	"github.com/anvay/backend-dinetab/internal/menu"
	"github.com/anvay/backend-dinetab/internal/obs"
	"github.com/anvay/backend-dinetab/internal/reconcile"
	"github.com/anvay/backend-dinetab/internal/session"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
	"github.com/anvay/backend-dinetab/internal/upstream"
)

// ErrNotConfigured is returned when the service is missing a dependency.
var ErrNotConfigured = errors.New("order: service not configured")

// SubmitInput is a priced cart ready for submission.
type SubmitInput struct {
	RestaurantID string
	TableID      string
	TabID        string
	Flow         status.Flow
	Items        []billing.LineItem
	Coupons      []billing.Coupon
	Tax          billing.TaxSettings
	Note         string
}

// SubmitResult reports the accepted batch plus any reconciliation that
// happened on the way.
type SubmitResult struct {
	Batch        tab.OrderBatch
	Repriced     bool
	ChangedItems int
}

// Service orchestrates ordering against the upstream order service: catalog
// and tax lookups, pre-submission estimates, submission with one automatic
// reprice-and-retry, cancellation, and tab lifecycle.
type Service struct {
	Client    upstream.Client
	Registry  *tab.Registry
	Sessions  *session.Store
	Cache     *menu.Cache
	Tolerance billing.Money
	Events    *events.Bus
	Locks     lock.Guard
	Logger    zerolog.Logger
}

// Catalog returns the restaurant menu, served from cache unless skipCache is
// set. A fresh fetch repopulates the cache.
func (s *Service) Catalog(ctx context.Context, restaurantID string, skipCache bool) (menu.Catalog, error) {
	if s == nil || s.Client == nil {
		return menu.Catalog{}, ErrNotConfigured
	}
	if !skipCache && s.Cache != nil {
		var cached menu.Catalog
		if ok, err := s.Cache.GetJSON(ctx, menu.CatalogKey(restaurantID), &cached); err == nil && ok {
			return cached, nil
		}
	}
	cat, err := s.Client.FetchCatalog(ctx, restaurantID)
	if err != nil {
		return menu.Catalog{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, menu.CatalogKey(restaurantID), cat); err != nil {
			s.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("catalog_cache_write_failed")
		}
	}
	return cat, nil
}

// TaxSettings returns the restaurant's tax configuration, cached alongside
// the catalog.
func (s *Service) TaxSettings(ctx context.Context, restaurantID string) (billing.TaxSettings, error) {
	if s == nil || s.Client == nil {
		return billing.TaxSettings{}, ErrNotConfigured
	}
	if s.Cache != nil {
		var cached billing.TaxSettings
		if ok, err := s.Cache.GetJSON(ctx, menu.TaxKey(restaurantID), &cached); err == nil && ok {
			return cached, nil
		}
	}
	settings, err := s.Client.FetchTaxSettings(ctx, restaurantID)
	if err != nil {
		return billing.TaxSettings{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, menu.TaxKey(restaurantID), settings); err != nil {
			s.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("tax_cache_write_failed")
		}
	}
	return settings, nil
}

// Estimate computes the pre-submission bill for a cart. It runs the exact
// same calculation the aggregator uses for server-confirmed batches.
func (s *Service) Estimate(ctx context.Context, restaurantID string, items []billing.LineItem, coupons []billing.Coupon) (billing.Bill, error) {
	if s == nil || s.Client == nil {
		return billing.Bill{}, ErrNotConfigured
	}
	settings, err := s.TaxSettings(ctx, restaurantID)
	if err != nil {
		return billing.Bill{}, err
	}
	return billing.Compute(items, coupons, settings), nil
}

// Reconcile reprices the cart against a freshly fetched catalog.
func (s *Service) Reconcile(ctx context.Context, restaurantID string, items []billing.LineItem) (reconcile.Result, error) {
	if s == nil || s.Client == nil {
		return reconcile.Result{}, ErrNotConfigured
	}
	cat, err := s.Catalog(ctx, restaurantID, true)
	if err != nil {
		return reconcile.Result{}, err
	}
	result := reconcile.Reconcile(items, cat, s.Tolerance)
	countReconcile("manual", result.ChangedCount)
	return result, nil
}

// Submit sends the order upstream. On a price-mismatch rejection it reprices
// the cart against a fresh catalog and retries exactly once; a second
// mismatch is surfaced to the caller rather than looping.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if s == nil || s.Client == nil {
		return SubmitResult{}, ErrNotConfigured
	}
	if in.RestaurantID == "" || len(in.Items) == 0 {
		countSubmit("rejected")
		return SubmitResult{}, upstream.ErrValidation
	}
	if in.Flow == "" {
		in.Flow = status.FlowDineIn
	}

	// A second tap on "place order" while one submission is in flight is a
	// duplicate, not a queued request.
	var out SubmitResult
	err := s.Locks.Do(ctx, lock.SubmitKey(s.guardTarget(in)), func(ctx context.Context) error {
		var submitErr error
		out, submitErr = s.submit(ctx, in)
		return submitErr
	})
	return out, err
}

func (s *Service) guardTarget(in SubmitInput) string {
	switch {
	case in.TabID != "":
		return in.TabID
	case in.TableID != "":
		return in.TableID
	default:
		return in.RestaurantID
	}
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	batch, err := s.submitOnce(ctx, in)
	if err == nil {
		s.recordAccepted(ctx, in, batch)
		countSubmit("accepted")
		return SubmitResult{Batch: batch}, nil
	}
	if !errors.Is(err, upstream.ErrPriceMismatch) {
		countSubmit(submitResultLabel(err))
		return SubmitResult{}, err
	}

	// Stale pricing. Reprice from a fresh catalog and retry once.
	cat, catErr := s.Catalog(ctx, in.RestaurantID, true)
	if catErr != nil {
		countSubmit("error")
		return SubmitResult{}, catErr
	}
	repriced := reconcile.Reconcile(in.Items, cat, s.Tolerance)
	countReconcile("submit_retry", repriced.ChangedCount)
	in.Items = repriced.Items

	batch, err = s.submitOnce(ctx, in)
	if err != nil {
		if errors.Is(err, upstream.ErrPriceMismatch) {
			countSubmit("price_mismatch")
		} else {
			countSubmit(submitResultLabel(err))
		}
		return SubmitResult{Repriced: true, ChangedItems: repriced.ChangedCount}, err
	}
	s.recordAccepted(ctx, in, batch)
	countSubmit("accepted")
	return SubmitResult{Batch: batch, Repriced: true, ChangedItems: repriced.ChangedCount}, nil
}

func (s *Service) submitOnce(ctx context.Context, in SubmitInput) (tab.OrderBatch, error) {
	bill := billing.Compute(in.Items, in.Coupons, in.Tax)
	return s.Client.SubmitOrder(ctx, upstream.SubmitRequest{
		RestaurantID: in.RestaurantID,
		TableID:      in.TableID,
		TabID:        in.TabID,
		Flow:         string(in.Flow),
		Items:        in.Items,
		Coupons:      in.Coupons,
		Subtotal:     bill.Subtotal,
		GrandTotal:   bill.GrandTotal,
		Note:         strings.TrimSpace(in.Note),
	})
}

func (s *Service) recordAccepted(ctx context.Context, in SubmitInput, batch tab.OrderBatch) {
	if batch.Flow == "" {
		batch.Flow = in.Flow
	}
	if s.Registry != nil {
		if in.TabID != "" {
			if err := s.Registry.AttachBatch(in.TabID, batch); err != nil {
				s.Logger.Warn().Err(err).Str("tab_id", in.TabID).Str("batch_id", batch.ID).Msg("attach_batch_failed")
				s.Registry.RecordBatch(batch)
			}
		} else {
			s.Registry.RecordBatch(batch)
			if in.TableID != "" {
				s.Registry.RecordPendingGroup(in.TableID, batch.ID)
			}
		}
	}
	if s.Sessions != nil {
		if err := s.Sessions.SaveBatch(ctx, batch); err != nil {
			s.Logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("session_save_failed")
		}
	}
	if s.Events != nil {
		s.Events.Publish(ctx, events.TopicOrderSubmitted, batch.ID, batch)
	}
	s.Logger.Info().
		Str("batch_id", batch.ID).
		Str("tab_id", batch.TabID).
		Int64("grand_total", batch.GrandTotal).
		Msg("order_submitted")
}

// Cancel requests cancellation upstream and applies the result locally only
// after the upstream confirms. A refused cancellation leaves the local batch
// untouched.
func (s *Service) Cancel(ctx context.Context, batchID, reason string) (tab.OrderBatch, error) {
	if s == nil || s.Client == nil {
		return tab.OrderBatch{}, ErrNotConfigured
	}
	if s.Registry != nil {
		if local, ok := s.Registry.Batch(batchID); ok && !status.CanUserCancel(local.Status) {
			countCancel("too_late")
			return tab.OrderBatch{}, upstream.ErrTooLateToCancel
		}
	}

	batch, err := s.Client.CancelBatch(ctx, batchID, reason)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrTooLateToCancel):
			countCancel("too_late")
		case errors.Is(err, upstream.ErrNotFound):
			countCancel("not_found")
		default:
			countCancel("error")
		}
		return tab.OrderBatch{}, err
	}

	if s.Registry != nil {
		s.Registry.RecordBatch(batch)
	}
	if s.Sessions != nil {
		if err := s.Sessions.SaveBatch(ctx, batch); err != nil {
			s.Logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("session_save_failed")
		}
	}
	if s.Events != nil {
		s.Events.Publish(ctx, events.TopicOrderCancelled, batch.ID, batch)
	}
	countCancel("cancelled")
	s.Logger.Info().Str("batch_id", batchID).Str("reason", reason).Msg("order_cancelled")
	return batch, nil
}

// OpenTab opens a tab upstream and adopts it into the local registry.
func (s *Service) OpenTab(ctx context.Context, restaurantID, tableID, name string, pax int) (tab.Tab, error) {
	if s == nil || s.Client == nil {
		return tab.Tab{}, ErrNotConfigured
	}
	if strings.TrimSpace(name) == "" || pax <= 0 {
		return tab.Tab{}, tab.ErrInvalidInput
	}
	opened, err := s.Client.OpenTab(ctx, upstream.OpenTabRequest{
		RestaurantID: restaurantID,
		TableID:      tableID,
		Name:         strings.TrimSpace(name),
		Pax:          pax,
	})
	if err != nil {
		return tab.Tab{}, err
	}
	if s.Registry != nil {
		s.Registry.AdoptTab(opened)
		occupied := pax
		if current, ok := s.Registry.Table(tableID); ok {
			occupied = current.Occupied + pax
		}
		s.Registry.UpsertTable(tab.Table{ID: tableID, Occupied: occupied})
	}
	if s.Sessions != nil {
		if err := s.Sessions.SaveActiveTab(ctx, tableID, opened.ID); err != nil {
			s.Logger.Warn().Err(err).Str("table_id", tableID).Msg("active_tab_save_failed")
		}
	}
	if s.Events != nil {
		s.Events.Publish(ctx, events.TopicTabOpened, opened.ID, opened)
	}
	return opened, nil
}

// CloseTab closes an empty tab, checking emptiness locally before asking the
// upstream so a tab with in-flight orders is refused without a round trip.
func (s *Service) CloseTab(ctx context.Context, tabID string) error {
	if s == nil || s.Client == nil {
		return ErrNotConfigured
	}
	var tableID string
	var pax int
	if s.Registry != nil {
		t, ok := s.Registry.Tab(tabID)
		if !ok {
			return tab.ErrNotFound
		}
		if !t.Empty() {
			return tab.ErrTabNotEmpty
		}
		tableID = t.TableID
		pax = t.Pax
	}
	if err := s.Client.CloseTab(ctx, tabID); err != nil {
		return err
	}
	if s.Registry != nil {
		if err := s.Registry.CloseTab(tabID); err != nil {
			return err
		}
		if current, ok := s.Registry.Table(tableID); ok {
			freed := current.Occupied - pax
			if freed < 0 {
				freed = 0
			}
			s.Registry.UpsertTable(tab.Table{ID: tableID, Occupied: freed})
		}
	}
	if s.Sessions != nil && tableID != "" {
		if err := s.Sessions.ClearActiveTab(ctx, tableID); err != nil {
			s.Logger.Warn().Err(err).Str("table_id", tableID).Msg("active_tab_clear_failed")
		}
	}
	if s.Events != nil {
		s.Events.Publish(ctx, events.TopicTabClosed, tabID, nil)
	}
	return nil
}

// DisplayStatus resolves the timeline rendering state for a batch, preferring
// the locally recorded snapshot and falling back to a direct fetch.
func (s *Service) DisplayStatus(ctx context.Context, batchID string) (status.DisplayStatus, error) {
	if s == nil || s.Client == nil {
		return status.DisplayStatus{}, ErrNotConfigured
	}
	if s.Registry != nil {
		if b, ok := s.Registry.Batch(batchID); ok {
			return status.Display(b.Status, b.Flow), nil
		}
	}
	batch, err := s.Client.FetchBatch(ctx, batchID)
	if err != nil {
		return status.DisplayStatus{}, err
	}
	if s.Registry != nil {
		s.Registry.RecordBatch(batch)
	}
	return status.Display(batch.Status, batch.Flow), nil
}

func submitResultLabel(err error) string {
	switch {
	case errors.Is(err, upstream.ErrValidation):
		return "rejected"
	case errors.Is(err, upstream.ErrPriceMismatch):
		return "price_mismatch"
	default:
		return "error"
	}
}

func countSubmit(result string) {
	if obs.OrderSubmitTotal != nil {
		obs.OrderSubmitTotal.WithLabelValues(result).Inc()
	}
}

func countCancel(result string) {
	if obs.CancelRequestsTotal != nil {
		obs.CancelRequestsTotal.WithLabelValues(result).Inc()
	}
}

func countReconcile(trigger string, drift int) {
	if obs.ReconcileRunsTotal != nil {
		obs.ReconcileRunsTotal.WithLabelValues(trigger).Inc()
	}
	if obs.ReconcileDriftTotal != nil && drift > 0 {
		obs.ReconcileDriftTotal.Add(float64(drift))
	}
}
