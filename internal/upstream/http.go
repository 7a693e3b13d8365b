package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/menu"
	"github.com/anvay/backend-dinetab/internal/resilience"
	"github.com/anvay/backend-dinetab/internal/tab"
)

// HTTPClient talks to the upstream order service over its JSON API.
type HTTPClient struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
	Logger  zerolog.Logger
}

// NewHTTPClient builds a client for the given base URL with a breaker-guarded
// transport.
func NewHTTPClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithLogger(logger)
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    resilience.NewHTTPClient(&http.Client{Timeout: timeout}, breaker, "order-service"),
		Logger:  logger,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) FetchBatch(ctx context.Context, batchID string) (tab.OrderBatch, error) {
	var out tab.OrderBatch
	err := c.doJSON(ctx, http.MethodGet, "/v1/batches/"+url.PathEscape(batchID), nil, &out)
	return out, err
}

func (c *HTTPClient) FetchCatalog(ctx context.Context, restaurantID string) (menu.Catalog, error) {
	var out menu.Catalog
	err := c.doJSON(ctx, http.MethodGet, "/v1/restaurants/"+url.PathEscape(restaurantID)+"/menu", nil, &out)
	if err != nil {
		return out, err
	}
	out.RestaurantID = restaurantID
	out.FetchedAt = time.Now()
	return out, nil
}

func (c *HTTPClient) FetchTaxSettings(ctx context.Context, restaurantID string) (billing.TaxSettings, error) {
	var out billing.TaxSettings
	err := c.doJSON(ctx, http.MethodGet, "/v1/restaurants/"+url.PathEscape(restaurantID)+"/tax-settings", nil, &out)
	return out, err
}

func (c *HTTPClient) SubmitOrder(ctx context.Context, req SubmitRequest) (tab.OrderBatch, error) {
	var out tab.OrderBatch
	err := c.doJSON(ctx, http.MethodPost, "/v1/orders", req, &out)
	return out, err
}

func (c *HTTPClient) CancelBatch(ctx context.Context, batchID, reason string) (tab.OrderBatch, error) {
	var out tab.OrderBatch
	body := map[string]string{"reason": reason}
	err := c.doJSON(ctx, http.MethodPost, "/v1/batches/"+url.PathEscape(batchID)+"/cancel", body, &out)
	return out, err
}

func (c *HTTPClient) OpenTab(ctx context.Context, req OpenTabRequest) (tab.Tab, error) {
	var out tab.Tab
	err := c.doJSON(ctx, http.MethodPost, "/v1/tables/"+url.PathEscape(req.TableID)+"/tabs", req, &out)
	return out, err
}

func (c *HTTPClient) CloseTab(ctx context.Context, tabID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/tabs/"+url.PathEscape(tabID), nil, nil)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: encode request: %w", err)
		}
		resilience.ReplayableBody(req, payload)
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) decodeError(resp *http.Response) error {
	var env errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &env); err != nil || env.Error.Code == "" {
		c.Logger.Warn().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(raw), 256)).
			Msg("upstream_error_unparsed")
		return newError("", "", resp.StatusCode)
	}
	return newError(env.Error.Code, env.Error.Message, resp.StatusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
