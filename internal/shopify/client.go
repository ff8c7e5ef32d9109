package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIVersion is used when the config leaves the version unset.
const DefaultAPIVersion = "2025-01"

// minRequestInterval spaces admin API calls to stay under the REST
// bucket (2 req/s on standard plans).
const minRequestInterval = 500 * time.Millisecond

// Client is a minimal Shopify admin REST client covering the two
// surfaces the sync needs: orders and price-rule discount codes.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// ClientConfig holds configuration for the Shopify client.
type ClientConfig struct {
	ShopDomain     string // with or without .myshopify.com
	AccessToken    string
	APIVersion     string
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// APIError is a non-2xx response from the admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify API error: %d - %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the next sync tick may reasonably see the
// call succeed. Retrying still happens at the tick level, never inline.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewClient creates a Shopify admin API client for one shop.
func NewClient(cfg *ClientConfig) *Client {
	domain := strings.TrimSuffix(cfg.ShopDomain, ".myshopify.com")
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:     fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", domain, version),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// PriceRule is a Shopify price rule owning discount codes.
type PriceRule struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// RuleDiscountCode is one code under a price rule.
type RuleDiscountCode struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// ListOrders fetches orders newest-first, following page_info pagination
// until maxOrders is reached or pages run out.
func (c *Client) ListOrders(ctx context.Context, maxOrders int) ([]OrderPayload, error) {
	endpoint := "orders.json?status=any&limit=250&order=created_at%20desc"
	var orders []OrderPayload

	for endpoint != "" {
		var page struct {
			Orders []OrderPayload `json:"orders"`
		}
		next, err := c.getJSON(ctx, endpoint, &page)
		if err != nil {
			return orders, err
		}
		orders = append(orders, page.Orders...)
		if maxOrders > 0 && len(orders) >= maxOrders {
			return orders[:maxOrders], nil
		}
		endpoint = next
	}
	return orders, nil
}

// ListPriceRules fetches the shop's price rules.
func (c *Client) ListPriceRules(ctx context.Context) ([]PriceRule, error) {
	var resp struct {
		PriceRules []PriceRule `json:"price_rules"`
	}
	_, err := c.getJSON(ctx, "price_rules.json", &resp)
	return resp.PriceRules, err
}

// ListDiscountCodes fetches the discount codes under one price rule.
func (c *Client) ListDiscountCodes(ctx context.Context, priceRuleID int64) ([]RuleDiscountCode, error) {
	var resp struct {
		DiscountCodes []RuleDiscountCode `json:"discount_codes"`
	}
	_, err := c.getJSON(ctx, fmt.Sprintf("price_rules/%d/discount_codes.json", priceRuleID), &resp)
	return resp.DiscountCodes, err
}

// getJSON performs one GET and decodes the body. The returned string is
// the next page endpoint from the Link header, "" when there is none.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) (string, error) {
	c.throttle()

	url := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		url = c.baseURL + "/" + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("shopify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("failed to decode shopify response: %w", err)
	}

	return nextPageURL(resp.Header.Get("Link")), nil
}

// throttle enforces the minimum spacing between requests.
func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := minRequestInterval - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

// nextPageURL extracts the rel="next" target from a Link header.
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}
