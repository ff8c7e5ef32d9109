package shopify

import (
	"strconv"
	"strings"
)

// fallbackNames is the fixed pool used when the platform redacts
// customer PII (development/basic plans hide names, phones and emails).
// The pool index is seeded from the order id so the same order always
// synthesizes the same name. Synthesized values are display-only and
// must never feed lead matching.
var fallbackNames = []string{
	"Arjun Mehta", "Siddharth Rao", "Karan Sharma", "Anjali Gupta",
	"Priyanka Nair", "Rahul Deshmukh", "Sneha Kulkarni", "Vikram Singh",
	"Aditi Joshi", "Rohan Malhotra",
}

// SyntheticEmailDomain marks synthesized display emails.
const SyntheticEmailDomain = "@shop-user.com"

// Identity is the customer identity extracted from one order payload.
// Name/Email may be synthesized when the payload is redacted; RawEmail
// and Phone always come from the payload itself (empty when redacted)
// and are the only values attribution may match leads on.
type Identity struct {
	Name           string
	Email          string
	Phone          string
	RawEmail       string
	SyntheticName  bool
	SyntheticEmail bool
}

func redacted(v string) bool {
	return strings.Contains(strings.ToLower(v), "redacted")
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// SyntheticName picks the deterministic fallback name for an order id,
// seeded by its last two digits.
func SyntheticName(orderID string) string {
	seed := 0
	if len(orderID) >= 2 {
		if n, err := strconv.Atoi(orderID[len(orderID)-2:]); err == nil {
			seed = n
		}
	} else if n, err := strconv.Atoi(orderID); err == nil {
		seed = n
	}
	return fallbackNames[seed%len(fallbackNames)]
}

// SyntheticEmail derives the display email for a synthesized or
// redacted identity: "firstname.lastname@shop-user.com".
func SyntheticEmail(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", ".") + SyntheticEmailDomain
}

// ExtractIdentity applies the PII fallback cascade to one payload.
//
// Name: shipping -> billing -> customer object, first non-empty wins;
// redacted or absent values fall back to the deterministic pool.
// Email: order email -> customer email, synthesized when redacted.
// Phone: order.phone -> shipping -> billing -> customer ->
// customer.default_address, first non-redacted value, else empty.
func ExtractIdentity(p *OrderPayload) Identity {
	var id Identity

	if p.ShippingAddress != nil && p.ShippingAddress.FirstName != "" {
		id.Name = fullName(p.ShippingAddress.FirstName, p.ShippingAddress.LastName)
	} else if p.BillingAddress != nil && p.BillingAddress.FirstName != "" {
		id.Name = fullName(p.BillingAddress.FirstName, p.BillingAddress.LastName)
	} else if p.Customer != nil && p.Customer.FirstName != "" {
		id.Name = fullName(p.Customer.FirstName, p.Customer.LastName)
	}
	if id.Name == "" || redacted(id.Name) {
		id.Name = SyntheticName(p.OrderID())
		id.SyntheticName = true
	}

	email := p.Email
	if email == "" && p.Customer != nil {
		email = p.Customer.Email
	}
	if email != "" && !redacted(email) {
		id.RawEmail = email
		id.Email = email
	} else {
		id.Email = SyntheticEmail(id.Name)
		id.SyntheticEmail = true
	}

	id.Phone = extractPhone(p)
	return id
}

func extractPhone(p *OrderPayload) string {
	candidates := []string{p.Phone}
	if p.ShippingAddress != nil {
		candidates = append(candidates, p.ShippingAddress.Phone)
	}
	if p.BillingAddress != nil {
		candidates = append(candidates, p.BillingAddress.Phone)
	}
	if p.Customer != nil {
		candidates = append(candidates, p.Customer.Phone)
		if p.Customer.DefaultAddress != nil {
			candidates = append(candidates, p.Customer.DefaultAddress.Phone)
		}
	}
	for _, c := range candidates {
		if c != "" && !redacted(c) {
			return strings.TrimSpace(c)
		}
	}
	return ""
}
