// Package catalog is the HTTP client for the inventory/order service.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errx "github.com/salescode-agent/server/internal/core/error"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// Order submission styles supported by the catalog service.
const (
	OrderModeQuery = "query"
	OrderModeJSON  = "json"
)

const maxBodySnippet = 512

type Config struct {
	BaseURL      string        `envconfig:"CATALOG_BASE_URL" default:"http://localhost:8080/api"`
	Timeout      time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`
	OrderMode    string        `envconfig:"CATALOG_ORDER_MODE" default:"query"`
	RecentOrders int           `envconfig:"CATALOG_RECENT_ORDERS" default:"5"`
}

// Client talks to the catalog service. It never retries: order placement is not
// idempotent and the read paths are cheap to re-run by the caller.
type Client struct {
	baseURL      string
	orderMode    string
	recentOrders int
	http         *http.Client
}

// NewClient builds a Client from cfg, filling zero values with defaults.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errx.Config("catalog base url is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errx.Config("catalog base url %q: %v", base, err)
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.OrderMode))
	switch mode {
	case "":
		mode = OrderModeQuery
	case OrderModeQuery, OrderModeJSON:
	default:
		return nil, errx.Config("unknown catalog order mode %q", cfg.OrderMode)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	recent := cfg.RecentOrders
	if recent <= 0 {
		recent = 5
	}
	return &Client{
		baseURL:      base,
		orderMode:    mode,
		recentOrders: recent,
		http:         &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalised service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SearchProducts returns products whose name contains query (case-insensitive, server side).
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	var out []Product
	q := url.Values{"query": {query}}
	if err := c.getJSON(ctx, "/products?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("search products %q: %w", query, err)
	}
	return out, nil
}

// ListProducts returns every product in the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.getJSON(ctx, "/all-products", &out); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// RecentOrders returns the most recent orders, capped at the configured count.
func (c *Client) RecentOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.getJSON(ctx, "/recent-orders", &out); err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	if len(out) > c.recentOrders {
		out = out[:c.recentOrders]
	}
	return out, nil
}

// PlaceOrder submits req exactly once.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		httpReq *http.Request
		err     error
	)
	switch c.orderMode {
	case OrderModeJSON:
		body, mErr := json.Marshal(req)
		if mErr != nil {
			return nil, fmt.Errorf("marshal order: %w", mErr)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	default:
		q := url.Values{
			"productId": {req.ProductID},
			"quantity":  {strconv.Itoa(req.Quantity)},
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order?"+q.Encode(), http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}

	status, body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errx.Upstream(status, snippet(body))
	}
	return parseOrderResponse(body)
}

// parseOrderResponse accepts a JSON confirmation or the plain-text replies
// ("Success: ..." / "Error: ...") some catalog versions send with a 200.
func parseOrderResponse(body []byte) (*OrderConfirmation, error) {
	text := strings.TrimSpace(string(body))

	var conf OrderConfirmation
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal(body, &conf); err == nil && conf.OrderID != "" {
			return &conf, nil
		}
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "error"):
		return nil, errx.Upstream(http.StatusOK, snippet(body))
	case strings.HasPrefix(lower, "success"):
		return &OrderConfirmation{Message: text}, nil
	default:
		return nil, errx.Upstream(http.StatusOK, "unrecognised order response: "+snippet(body))
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errx.Upstream(status, snippet(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errx.Upstream(status, "decode response: "+err.Error())
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logx.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("catalog request failed")
		return 0, nil, errx.UpstreamUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errx.UpstreamUnavailable(fmt.Errorf("read body: %w", err))
	}
	logx.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("catalog request")
	return resp.StatusCode, body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxBodySnippet {
		return s[:maxBodySnippet] + "..."
	}
	return s
}
