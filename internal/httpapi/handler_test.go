package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/httpapi"
	"github.com/anvay/backend-dinetab/internal/menu"
	"github.com/anvay/backend-dinetab/internal/order"
	"github.com/anvay/backend-dinetab/internal/session"
	"github.com/anvay/backend-dinetab/internal/status"
	"github.com/anvay/backend-dinetab/internal/tab"
	"github.com/anvay/backend-dinetab/internal/tracker"
	"github.com/anvay/backend-dinetab/internal/upstream"
)

type fixture struct {
	handler *httpapi.Handler
	mock    *upstream.Mock
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	mock := upstream.NewMock()
	mock.Tax = billing.TaxSettings{Enabled: true, RateBps: 500}
	registry := tab.NewRegistry()
	sessions := session.NewStore(rc, time.Hour)

	svc := &order.Service{
		Client:    mock,
		Registry:  registry,
		Sessions:  sessions,
		Cache:     menu.NewCache(rc, time.Minute),
		Tolerance: 1,
		Logger:    zerolog.Nop(),
	}
	tr := tracker.New(tracker.Config{
		Fetch: mock.FetchBatch,
		Intervals: tracker.Intervals{
			Pending:   5 * time.Millisecond,
			Confirmed: 5 * time.Millisecond,
			Active:    5 * time.Millisecond,
		},
		Ceiling: time.Hour,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(tr.Shutdown)

	h := &httpapi.Handler{
		Orders:   svc,
		Tracker:  tr,
		Registry: registry,
		Sessions: sessions,
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{handler: h, mock: mock, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func errorCode(t *testing.T, resp *http.Response) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error.Code, body.Error.Message
}

func TestSubmitOrderFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/tables/table-1/tabs", map[string]any{
		"restaurant_id": "rest-1",
		"name":          "Asha",
		"pax":           4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var opened tab.Tab
	decodeBody(t, resp, &opened)
	require.NotEmpty(t, opened.ID)

	resp = f.do(t, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "rest-1",
		"table_id":      "table-1",
		"tab_id":        opened.ID,
		"items": []map[string]any{
			{"item_id": "dosa", "portion_price": 15800, "qty": 2},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var submitted struct {
		Batch    tab.OrderBatch `json:"batch"`
		Repriced bool           `json:"repriced"`
	}
	decodeBody(t, resp, &submitted)
	require.NotEmpty(t, submitted.Batch.ID)
	require.False(t, submitted.Repriced)

	resp = f.do(t, http.MethodGet, "/tabs/"+opened.ID+"/bill", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bill tab.BillView
	decodeBody(t, resp, &bill)
	require.Len(t, bill.Items, 1)
	require.Equal(t, tab.CombinedInProgress, bill.Status)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "rest-1",
		"items":         []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "VALIDATION", code)
}

func TestPriceMismatchSurfacesVerbatimReason(t *testing.T) {
	f := newFixture(t)
	f.mock.SubmitOrderFn = func(ctx context.Context, req upstream.SubmitRequest) (tab.OrderBatch, error) {
		return tab.OrderBatch{}, upstream.ErrPriceMismatch
	}
	f.mock.FetchCatalogFn = func(ctx context.Context, restaurantID string) (menu.Catalog, error) {
		return menu.Catalog{RestaurantID: restaurantID}, nil
	}

	resp := f.do(t, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "rest-1",
		"items": []map[string]any{
			{"item_id": "dosa", "portion_price": 15800, "qty": 1},
		},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "PRICE_MISMATCH", code)
}

func TestCancelTooLate(t *testing.T) {
	f := newFixture(t)
	f.handler.Registry.RecordBatch(tab.OrderBatch{ID: "batch-1", Status: status.Preparing})

	resp := f.do(t, http.MethodPost, "/batches/batch-1/cancel", map[string]any{"reason": "nope"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "TOO_LATE_TO_CANCEL", code)
}

func TestCloseNonEmptyTab(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/tables/table-1/tabs", map[string]any{
		"restaurant_id": "rest-1", "name": "Asha", "pax": 2,
	})
	var opened tab.Tab
	decodeBody(t, resp, &opened)

	resp = f.do(t, http.MethodPost, "/orders", map[string]any{
		"restaurant_id": "rest-1",
		"tab_id":        opened.ID,
		"items": []map[string]any{
			{"item_id": "dosa", "portion_price": 15800, "qty": 1},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodDelete, "/tabs/"+opened.ID, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "TAB_NOT_EMPTY", code)
}

func TestActiveTabAmbiguous(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Asha", "Ravi"} {
		resp := f.do(t, http.MethodPost, "/tables/table-1/tabs", map[string]any{
			"restaurant_id": "rest-1", "name": name, "pax": 2,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := f.do(t, http.MethodGet, "/tables/table-1/active-tab", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "AMBIGUOUS_TAB", code)
}

func TestBatchStatusNotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/batches/ghost/status", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	code, _ := errorCode(t, resp)
	require.Equal(t, "NOT_FOUND", code)
}

func TestTrackingLifecycle(t *testing.T) {
	f := newFixture(t)
	f.mock.Seed(tab.OrderBatch{ID: "batch-1", Status: status.Preparing, Flow: status.FlowDineIn})

	resp := f.do(t, http.MethodPost, "/batches/batch-1/track", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		_, ok := f.handler.Registry.Batch("batch-1")
		return ok
	}, time.Second, 5*time.Millisecond, "tracked batch should land in the registry")

	resp = f.do(t, http.MethodDelete, "/batches/batch-1/track", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.False(t, f.handler.Tracker.IsActive("batch-1"))
}

func TestVisibilityToggle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/visibility", map[string]any{"visible": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/visibility", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/visibility", map[string]any{"visible": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestEstimateEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/estimate", map[string]any{
		"restaurant_id": "rest-1",
		"items": []map[string]any{
			{"item_id": "dosa", "portion_price": 15800, "qty": 2},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bill billing.Bill
	decodeBody(t, resp, &bill)
	require.EqualValues(t, 31600, bill.Subtotal)
	require.EqualValues(t, 33180, bill.GrandTotal)
}
