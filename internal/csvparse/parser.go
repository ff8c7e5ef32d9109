// Package csvparse turns raw Shopify order-export CSV text into typed
// records. Exports vary by store and app, so logical fields are resolved
// against ordered alias lists instead of fixed column names.
package csvparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/normalize"
)

// ErrEmpty indicates the CSV had no content at all.
var ErrEmpty = errors.New("empty CSV file")

// ErrNoRecords indicates no data row survived validation.
var ErrNoRecords = errors.New("no valid records found: ensure the CSV has Billing Phone and Name (Order ID) columns")

// MissingColumnError reports an unresolvable mandatory column.
type MissingColumnError struct {
	Field string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column: %s", e.Field)
}

// Record is one parsed CSV line item. Phone is already normalized and is
// the customer identity key. NewOrder marks the first occurrence of
// OrderID within this parse, for per-batch unique-order counting.
type Record struct {
	OrderID  string
	Phone    string
	Name     string
	Product  string
	City     string
	Date     time.Time
	Amount   float64
	NewOrder bool
}

// Alias lists per logical field, first match wins. These follow the exact
// Shopify export header names ("Name" is the order number, "Billing Phone"
// the primary phone column).
var fieldAliases = map[string][]string{
	"order_id":       {"name", "order_id", "orderid", "order_number", "id"},
	"customer_phone": {"billing_phone", "phone", "billing_phone_number", "customer_phone", "shipping_phone"},
	"customer_name":  {"billing_name", "billing_full_name", "customer_name", "name", "customer"},
	"product_name":   {"lineitem_name", "line_item_name", "lineitem", "product_name", "product", "item_name"},
	"city":           {"shipping_city", "billing_city", "city", "shipping_province_city", "customer_city"},
	"order_date":     {"created_at", "order_date", "date", "paid_at", "processed_at"},
	"order_amount":   {"total", "subtotal", "order_amount", "amount", "lineitem_price", "total_price"},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Parse parses the full CSV text. A UTF-8 BOM and CRLF line endings are
// tolerated. Rows without a resolvable phone or order id are skipped and
// logged; the batch continues. Fails if customer_phone or order_id cannot
// be mapped to any column, or if nothing parses.
func Parse(content string, logger *zap.Logger) ([]Record, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return nil, ErrEmpty
	}

	headers := splitLine(lines[0])
	headerIdx := make(map[string]int, len(headers))
	for i, h := range headers {
		headerIdx[canonicalHeader(h)] = i
	}

	fieldIdx := make(map[string]int, len(fieldAliases))
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if idx, ok := headerIdx[alias]; ok {
				fieldIdx[field] = idx
				break
			}
		}
	}

	if _, ok := fieldIdx["customer_phone"]; !ok {
		return nil, &MissingColumnError{Field: "Billing Phone (or Phone)"}
	}
	if _, ok := fieldIdx["order_id"]; !ok {
		return nil, &MissingColumnError{Field: "Name (Order ID)"}
	}

	var records []Record
	seenOrders := make(map[string]struct{})

	for lineNo := 1; lineNo < len(lines); lineNo++ {
		if strings.TrimSpace(lines[lineNo]) == "" {
			continue
		}
		values := splitLine(lines[lineNo])
		get := func(field string) string {
			idx, ok := fieldIdx[field]
			if !ok || idx >= len(values) {
				return ""
			}
			return values[idx]
		}

		orderID := strings.TrimSpace(get("order_id"))
		phone := normalize.Phone(get("customer_phone"))

		if phone == "" {
			logger.Warn("skipping CSV line: no valid phone number", zap.Int("line", lineNo+1))
			continue
		}
		if orderID == "" {
			logger.Warn("skipping CSV line: no order ID", zap.Int("line", lineNo+1))
			continue
		}

		name := strings.TrimSpace(get("customer_name"))
		if name == "" {
			name = "Unknown"
		}
		product := strings.TrimSpace(get("product_name"))
		if product == "" {
			product = "Product"
		}

		_, seen := seenOrders[orderID]
		records = append(records, Record{
			OrderID:  orderID,
			Phone:    phone,
			Name:     name,
			Product:  product,
			City:     strings.TrimSpace(get("city")),
			Date:     parseDate(get("order_date")),
			Amount:   parseAmount(get("order_amount")),
			NewOrder: !seen,
		})
		seenOrders[orderID] = struct{}{}
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	logger.Info("parsed CSV batch",
		zap.Int("records", len(records)),
		zap.Int("unique_orders", len(seenOrders)),
	)
	return records, nil
}

// splitLine splits on top-level commas, honoring double-quoted fields so
// quoted values may contain commas. Fields come back trimmed.
func splitLine(line string) []string {
	var result []string
	var current strings.Builder
	insideQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			insideQuotes = !insideQuotes
		case r == ',' && !insideQuotes:
			result = append(result, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	result = append(result, strings.TrimSpace(current.String()))
	return result
}

// canonicalHeader lowercases and collapses non-alphanumeric runs into
// single underscores, e.g. "Billing Phone" -> "billing_phone".
func canonicalHeader(h string) string {
	h = strings.ToLower(h)
	var b strings.Builder
	b.Grow(len(h))
	lastUnderscore := false
	for _, r := range h {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return b.String()
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

func parseAmount(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	amount, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return amount
}
