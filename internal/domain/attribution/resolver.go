package attribution

import (
	"github.com/google/uuid"

	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/normalize"
)

// PlatformOrganic is the attribution when neither coupon nor lead match.
const PlatformOrganic = "Organic"

// couponBlocklist holds stale test/demo codes that must never attribute
// real orders, compared by normalized form.
var couponBlocklist = []string{"FIRSTBUDDY20", "SHARKTANK5"}

// Input is the slice of an order payload the resolver needs.
type Input struct {
	DiscountCodes []string
	Email         string
	Phone         string
}

// Result is the attribution decision for one order.
type Result struct {
	CouponCode     string
	CampaignID     *uuid.UUID
	PlatformSource string
}

// LeadLookup finds a lead by exact email or exact normalized phone,
// first match wins. A nil lead with nil error is a clean miss.
type LeadLookup func(email, phone string) (*models.Lead, error)

// IsBlocklisted reports whether a raw coupon code normalizes to a
// blocklisted code.
func IsBlocklisted(code string) bool {
	normalized := normalize.CouponCode(code)
	if normalized == "" {
		return false
	}
	for _, blocked := range couponBlocklist {
		if normalize.CouponCode(blocked) == normalized {
			return true
		}
	}
	return false
}

// Resolve decides couponCode, campaignID and platformSource for one
// order. Coupon match takes priority over lead match; the blocklist
// discards the coupon entirely before any matching. Pure apart from the
// injected lead lookup; persistence happens in the reconciliation engine.
func Resolve(in Input, coupons []models.Coupon, findLead LeadLookup) (Result, error) {
	result := Result{PlatformSource: PlatformOrganic}

	if len(in.DiscountCodes) > 0 && in.DiscountCodes[0] != "" {
		code := in.DiscountCodes[0]
		if IsBlocklisted(code) {
			// Treat as no coupon at all.
			code = ""
		} else {
			normalized := normalize.CouponCode(code)
			for i := range coupons {
				if normalize.CouponCode(coupons[i].Code) != normalized {
					continue
				}
				if coupons[i].Campaign != nil {
					id := coupons[i].Campaign.ID
					result.CampaignID = &id
					result.PlatformSource = coupons[i].Campaign.PlatformSource
				}
				break
			}
		}
		result.CouponCode = code
	}

	if result.CampaignID == nil && (in.Email != "" || in.Phone != "") && findLead != nil {
		lead, err := findLead(in.Email, normalize.Phone(in.Phone))
		if err != nil {
			return result, err
		}
		if lead != nil {
			id := lead.CampaignID
			result.CampaignID = &id
			if lead.PlatformSource != "" {
				result.PlatformSource = lead.PlatformSource
			}
		}
	}

	return result, nil
}
