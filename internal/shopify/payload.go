// Package shopify holds the order-source integration: the webhook/REST
// payload shapes, the customer-identity extraction rules, webhook
// signature verification and a minimal admin API client.
package shopify

import (
	"strconv"
	"strings"
	"time"
)

// OrderPayload is the order JSON delivered by webhook or returned by the
// admin API. Only the fields the attribution pipeline reads are typed.
type OrderPayload struct {
	ID              int64          `json:"id"`
	CreatedAt       string         `json:"created_at"`
	TotalPrice      string         `json:"total_price"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone"`
	FinancialStatus string         `json:"financial_status"`
	Customer        *Customer      `json:"customer"`
	ShippingAddress *Address       `json:"shipping_address"`
	BillingAddress  *Address       `json:"billing_address"`
	DiscountCodes   []DiscountCode `json:"discount_codes"`
	LineItems       []LineItem     `json:"line_items"`
}

// Customer is the nested customer object on an order payload.
type Customer struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	DefaultAddress *Address `json:"default_address"`
}

// Address covers shipping, billing and default addresses.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
}

// DiscountCode is one applied discount on an order.
type DiscountCode struct {
	Code string `json:"code"`
}

// LineItem is one purchased item.
type LineItem struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

// OrderID returns the external order id as the string key used for
// idempotent reconciliation.
func (p *OrderPayload) OrderID() string {
	return strconv.FormatInt(p.ID, 10)
}

// DiscountCodeList flattens the applied codes.
func (p *OrderPayload) DiscountCodeList() []string {
	codes := make([]string, 0, len(p.DiscountCodes))
	for _, dc := range p.DiscountCodes {
		codes = append(codes, dc.Code)
	}
	return codes
}

// LineItemTitles joins line item titles the way the dashboard displays
// them.
func (p *OrderPayload) LineItemTitles() string {
	titles := make([]string, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		titles = append(titles, li.Title)
	}
	return strings.Join(titles, ", ")
}

// CreatedAtTime parses created_at; a missing or malformed timestamp
// falls back to now so the order still sorts somewhere sensible.
func (p *OrderPayload) CreatedAtTime() time.Time {
	if p.CreatedAt == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Now()
	}
	return t
}

// TotalAmount parses total_price, which Shopify sends as a string.
func (p *OrderPayload) TotalAmount() float64 {
	amount, err := strconv.ParseFloat(strings.TrimSpace(p.TotalPrice), 64)
	if err != nil {
		return 0
	}
	return amount
}
