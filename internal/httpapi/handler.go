package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/common"
	"github.com/anvay/backend-dinetab/internal/lock"
	"github.com/anvay/backend-dinetab/internal/order"
	"github.com/anvay/backend-dinetab/internal/session"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
	"github.com/anvay/backend-dinetab/internal/tracker"
	"github.com/anvay/backend-dinetab/internal/upstream"
)

// Handler exposes the engine's operations to the UI layer.
type Handler struct {
	Orders   *order.Service
	Tracker  *tracker.Tracker
	Registry *tab.Registry
	Sessions *session.Store
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts every endpoint on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/batches/{batchID}", func(r chi.Router) {
		r.Get("/status", h.batchStatus)
		r.Post("/track", h.startTracking)
		r.Delete("/track", h.stopTracking)
		r.Post("/cancel", h.cancelBatch)
	})
	r.Get("/tabs/{tabID}/bill", h.tabBill)
	r.Delete("/tabs/{tabID}", h.closeTab)
	r.Route("/tables/{tableID}", func(r chi.Router) {
		r.Post("/tabs", h.openTab)
		r.Get("/active-tab", h.activeTab)
	})
	r.Post("/orders", h.submitOrder)
	r.Post("/reconcile", h.reconcile)
	r.Post("/estimate", h.estimate)
	r.Get("/catalog/{restaurantID}", h.catalog)
	r.Post("/visibility", h.visibility)
	return r
}

func (h *Handler) batchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	ds, err := h.Orders.DisplayStatus(r.Context(), batchID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, ds)
}

type trackRequest struct {
	Flow string `json:"flow" validate:"omitempty,oneof=dine_in pre_order"`
}

func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	var req trackRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	flow := status.Flow(req.Flow)
	if flow == "" {
		flow = status.FlowDineIn
	}

	err := h.Tracker.Start(r.Context(), batchID, flow, func(b tab.OrderBatch) {
		if h.Registry != nil {
			h.Registry.RecordBatch(b)
		}
		if h.Sessions != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.Sessions.SaveBatch(ctx, b); err != nil {
				h.Logger.Warn().Err(err).Str("batch_id", b.ID).Msg("session_save_failed")
			}
		}
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"batch_id": batchID, "tracking": true})
}

func (h *Handler) stopTracking(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	h.Tracker.Stop(batchID)
	common.JSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "tracking": false})
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

func (h *Handler) visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Tracker.SetVisible(*req.Visible)
	common.JSON(w, http.StatusOK, map[string]any{"visible": *req.Visible})
}

func (h *Handler) tabBill(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")
	bill, err := h.Registry.BillForTab(tabID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, bill)
}

type openTabRequest struct {
	RestaurantID string `json:"restaurant_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Pax          int    `json:"pax" validate:"required,gt=0"`
}

func (h *Handler) openTab(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	var req openTabRequest
	if !h.decode(w, r, &req) {
		return
	}
	opened, err := h.Orders.OpenTab(r.Context(), req.RestaurantID, tableID, req.Name, req.Pax)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, opened)
}

func (h *Handler) closeTab(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")
	if err := h.Orders.CloseTab(r.Context(), tabID); err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"tab_id": tabID, "closed": true})
}

func (h *Handler) activeTab(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	sel, err := h.Registry.ActiveSelection(tableID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sel)
}

type submitOrderRequest struct {
	RestaurantID string             `json:"restaurant_id" validate:"required"`
	TableID      string             `json:"table_id"`
	TabID        string             `json:"tab_id"`
	Flow         string             `json:"flow" validate:"omitempty,oneof=dine_in pre_order"`
	Items        []billing.LineItem `json:"items" validate:"required,min=1,dive"`
	Coupons      []billing.Coupon   `json:"coupons"`
	Note         string             `json:"note"`
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	tax, err := h.Orders.TaxSettings(r.Context(), req.RestaurantID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	res, err := h.Orders.Submit(r.Context(), order.SubmitInput{
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		TabID:        req.TabID,
		Flow:         status.Flow(req.Flow),
		Items:        req.Items,
		Coupons:      req.Coupons,
		Tax:          tax,
		Note:         req.Note,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"batch":         res.Batch,
		"repriced":      res.Repriced,
		"changed_items": res.ChangedItems,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	batch, err := h.Orders.Cancel(r.Context(), batchID, req.Reason)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, batch)
}

type reconcileRequest struct {
	RestaurantID string             `json:"restaurant_id" validate:"required"`
	Items        []billing.LineItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Orders.Reconcile(r.Context(), req.RestaurantID, req.Items)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items":         result.Items,
		"changed_count": result.ChangedCount,
	})
}

type estimateRequest struct {
	RestaurantID string             `json:"restaurant_id" validate:"required"`
	Items        []billing.LineItem `json:"items" validate:"required,min=1,dive"`
	Coupons      []billing.Coupon   `json:"coupons"`
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !h.decode(w, r, &req) {
		return
	}
	bill, err := h.Orders.Estimate(r.Context(), req.RestaurantID, req.Items, req.Coupons)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, bill)
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	skipCache := r.URL.Query().Get("fresh") == "true"
	cat, err := h.Orders.Catalog(r.Context(), restaurantID, skipCache)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, cat)
}

// decode unmarshals and validates the request body, writing a validation
// error response on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
			return false
		}
	}
	return true
}

// writeErr maps engine and upstream errors onto the API error shape. The
// upstream's verbatim reason is preferred over a generic message.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	message := ""
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.Message != "" {
		message = ue.Message
	}

	write := func(status int, code, fallback string) {
		if message == "" {
			message = fallback
		}
		common.JSONError(w, status, code, message, nil)
	}

	switch {
	case errors.Is(err, upstream.ErrValidation), errors.Is(err, tab.ErrInvalidInput):
		write(http.StatusBadRequest, common.CodeValidation, "invalid request")
	case errors.Is(err, upstream.ErrPriceMismatch):
		write(http.StatusConflict, common.CodePriceMismatch, "prices changed, please review your cart")
	case errors.Is(err, upstream.ErrTooLateToCancel):
		write(http.StatusConflict, common.CodeTooLateToCancel, "the kitchen already started preparing this order")
	case errors.Is(err, upstream.ErrTabNotEmpty), errors.Is(err, tab.ErrTabNotEmpty):
		write(http.StatusConflict, common.CodeTabNotEmpty, "tab still has open orders")
	case errors.Is(err, tab.ErrAmbiguousTab):
		write(http.StatusConflict, common.CodeAmbiguousTab, "multiple tabs open, choose one explicitly")
	case errors.Is(err, lock.ErrBusy):
		write(http.StatusConflict, common.CodeInProgress, "a submission for this tab is already in flight")
	case errors.Is(err, upstream.ErrNotFound), errors.Is(err, tab.ErrNotFound), errors.Is(err, session.ErrNotFound):
		write(http.StatusNotFound, common.CodeNotFound, "not found")
	case errors.Is(err, upstream.ErrUnavailable):
		write(http.StatusBadGateway, common.CodeNetwork, "order service unavailable")
	default:
		h.Logger.Error().Err(err).Msg("unhandled_error")
		write(http.StatusInternalServerError, common.CodeInternal, "internal error")
	}
}
