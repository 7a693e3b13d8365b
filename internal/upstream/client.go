package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/menu"
	"github.com/anvay/backend-dinetab/internal/tab"
)

// Sentinel errors mapped from upstream error codes.
var (
	ErrPriceMismatch   = errors.New("upstream: price mismatch")
	ErrTooLateToCancel = errors.New("upstream: too late to cancel")
	ErrTabNotEmpty     = errors.New("upstream: tab not empty")
	ErrNotFound        = errors.New("upstream: not found")
	ErrValidation      = errors.New("upstream: validation failed")
	ErrUnavailable     = errors.New("upstream: service unavailable")
)

// SubmitRequest carries a priced order batch to the upstream order service.
type SubmitRequest struct {
	RestaurantID string             `json:"restaurantId"`
	TableID      string             `json:"tableId,omitempty"`
	TabID        string             `json:"tabId,omitempty"`
	Flow         string             `json:"flow"`
	Items        []billing.LineItem `json:"items"`
	Coupons      []billing.Coupon   `json:"coupons,omitempty"`
	Subtotal     billing.Money      `json:"subtotal"`
	GrandTotal   billing.Money      `json:"grandTotal"`
	Note         string             `json:"note,omitempty"`
}

// OpenTabRequest asks the upstream to open a tab on a table.
type OpenTabRequest struct {
	RestaurantID string `json:"restaurantId"`
	TableID      string `json:"tableId"`
	Name         string `json:"name"`
	Pax          int    `json:"pax"`
}

// Client is the upstream order-service surface the engine depends on.
type Client interface {
	FetchBatch(ctx context.Context, batchID string) (tab.OrderBatch, error)
	FetchCatalog(ctx context.Context, restaurantID string) (menu.Catalog, error)
	FetchTaxSettings(ctx context.Context, restaurantID string) (billing.TaxSettings, error)
	SubmitOrder(ctx context.Context, req SubmitRequest) (tab.OrderBatch, error)
	CancelBatch(ctx context.Context, batchID, reason string) (tab.OrderBatch, error)
	OpenTab(ctx context.Context, req OpenTabRequest) (tab.Tab, error)
	CloseTab(ctx context.Context, tabID string) error
}

// Error preserves the upstream error code and message alongside the mapped
// sentinel so callers can match with errors.Is and still surface the
// server's verbatim reason.
type Error struct {
	Code    string
	Message string
	Status  int
	err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream: %s (status %d)", e.Code, e.Status)
}

func (e *Error) Unwrap() error { return e.err }

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status, err: sentinelFor(code, status)}
}

func sentinelFor(code string, status int) error {
	switch code {
	case "PRICE_MISMATCH":
		return ErrPriceMismatch
	case "TOO_LATE_TO_CANCEL":
		return ErrTooLateToCancel
	case "TAB_NOT_EMPTY":
		return ErrTabNotEmpty
	case "NOT_FOUND":
		return ErrNotFound
	case "VALIDATION":
		return ErrValidation
	}
	switch {
	case status == 404:
		return ErrNotFound
	case status == 409:
		return ErrPriceMismatch
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrValidation
	}
}
