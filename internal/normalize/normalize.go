// Package normalize canonicalizes the identity fields the attribution
// pipeline matches on. Coupon codes and phone numbers arrive in many
// formats; all comparisons elsewhere in the service use the normalized
// forms produced here, never the raw strings.
package normalize

import "strings"

// CouponCode canonicalizes a discount code for matching: trimmed,
// uppercased, stripped of everything except A-Z and 0-9. Punctuation,
// including hyphens, never contributes to identity, so "yogreet-10" and
// "YOGREET10" canonicalize identically. Returns "" for unusable input.
func CouponCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Phone canonicalizes a phone number into the customer identity key.
// All non-digits are stripped; a leading "91" country code is dropped
// when the remainder is longer than 10 digits; a single leading zero is
// dropped. Returns "" when nothing usable remains.
func Phone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	return digits
}
