package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/shopify"
)

func seedShop(t *testing.T, env *testEnv) *models.Shop {
	t.Helper()
	shop, err := env.shopRepo.EnsureShop(context.Background(), "tea-store", "token")
	require.NoError(t, err)
	return shop
}

func seedCampaignWithCoupon(t *testing.T, env *testEnv, shop *models.Shop, name, source, code string) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	campaign := &models.Campaign{Name: name, PlatformSource: source, ShopID: &shop.ID}
	require.NoError(t, env.campaignRepo.Create(ctx, campaign))
	require.NoError(t, env.campaignRepo.AttachCoupon(ctx, campaign.ID, &models.Coupon{
		ShopID: shop.ID,
		Code:   code,
	}))
	return campaign
}

func orderPayload(id int64, code string) *shopify.OrderPayload {
	p := &shopify.OrderPayload{
		ID:              id,
		CreatedAt:       "2025-03-01T10:00:00Z",
		TotalPrice:      "499.00",
		Email:           "asha@example.com",
		FinancialStatus: "paid",
		ShippingAddress: &shopify.Address{FirstName: "Asha", LastName: "Patel", Phone: "+91 98765 43210"},
		LineItems:       []shopify.LineItem{{Title: "Herbal Tea"}},
	}
	if code != "" {
		p.DiscountCodes = []shopify.DiscountCode{{Code: code}}
	}
	return p
}

func TestProcessOrderIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)

	payload := orderPayload(1001, "")
	_, err := env.reconciliation.ProcessOrder(ctx, shop, payload)
	require.NoError(t, err)
	_, err = env.reconciliation.ProcessOrder(ctx, shop, payload)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProcessOrderCouponAttribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	campaign := seedCampaignWithCoupon(t, env, shop, "March Promo", "Instagram", "YOGREET10")

	// Hyphenated, lowercase form of the stored code still matches.
	order, err := env.reconciliation.ProcessOrder(ctx, shop, orderPayload(2001, "yogreet-10"))
	require.NoError(t, err)

	require.NotNil(t, order.CampaignID)
	assert.Equal(t, campaign.ID, *order.CampaignID)
	assert.Equal(t, "Instagram", order.PlatformSource)
	assert.Equal(t, "yogreet-10", order.CouponCode, "raw code is preserved")
	assert.Equal(t, "Asha Patel", order.CustomerName)
	assert.Equal(t, "9876543210", order.CustomerPhone)
}

func TestProcessOrderBlocklistedCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	// Even with a matching coupon row, a blocklisted code never attributes.
	seedCampaignWithCoupon(t, env, shop, "Stale", "Facebook", "FIRSTBUDDY20")

	order, err := env.reconciliation.ProcessOrder(ctx, shop, orderPayload(2002, "firstbuddy20"))
	require.NoError(t, err)

	assert.Nil(t, order.CampaignID)
	assert.Equal(t, "Organic", order.PlatformSource)
	assert.Empty(t, order.CouponCode)
}

func TestProcessOrderMergeNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	campaign := seedCampaignWithCoupon(t, env, shop, "March Promo", "Instagram", "YOGREET10")

	first := orderPayload(3001, "YOGREET10")
	_, err := env.reconciliation.ProcessOrder(ctx, shop, first)
	require.NoError(t, err)

	// Re-delivery of the same order without the discount code, e.g. a
	// partial payload from a later webhook topic.
	second := orderPayload(3001, "")
	second.FinancialStatus = "refunded"
	order, err := env.reconciliation.ProcessOrder(ctx, shop, second)
	require.NoError(t, err)

	require.NotNil(t, order.CampaignID)
	assert.Equal(t, campaign.ID, *order.CampaignID)
	assert.Equal(t, "Instagram", order.PlatformSource)
	assert.Equal(t, "YOGREET10", order.CouponCode)
	assert.Equal(t, "refunded", order.FinancialStatus, "volatile fields still update")
}

func TestLeadConversionRequiresMatchingCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	campaign := seedCampaignWithCoupon(t, env, shop, "March Promo", "Instagram", "YOGREET10")

	lead := &models.Lead{
		CampaignID:     campaign.ID,
		Name:           "Asha",
		Email:          "asha@example.com",
		PlatformSource: "Instagram",
	}
	require.NoError(t, env.leadRepo.Create(ctx, lead))

	// No coupon: the lead still attributes the order but stays PENDING.
	order, err := env.reconciliation.ProcessOrder(ctx, shop, orderPayload(4001, ""))
	require.NoError(t, err)
	require.NotNil(t, order.CampaignID)
	assert.Equal(t, campaign.ID, *order.CampaignID)

	got, err := env.leadRepo.FindPendingByEmailOrPhone(ctx, "asha@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusPending, got.Status)

	// Coupon of the lead's own campaign: now it converts.
	_, err = env.reconciliation.ProcessOrder(ctx, shop, orderPayload(4002, "YOGREET10"))
	require.NoError(t, err)

	var reloaded models.Lead
	require.NoError(t, env.db.First(&reloaded, "id = ?", lead.ID).Error)
	assert.Equal(t, models.LeadStatusConverted, reloaded.Status)
}

func TestLeadConversionSkipsForeignCampaignCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	leadCampaign := seedCampaignWithCoupon(t, env, shop, "March Promo", "Instagram", "YOGREET10")
	seedCampaignWithCoupon(t, env, shop, "April Promo", "Facebook", "APRIL15")

	lead := &models.Lead{
		CampaignID: leadCampaign.ID,
		Email:      "asha@example.com",
	}
	require.NoError(t, env.leadRepo.Create(ctx, lead))

	// Coupon belongs to a different campaign than the lead.
	_, err := env.reconciliation.ProcessOrder(ctx, shop, orderPayload(5001, "APRIL15"))
	require.NoError(t, err)

	var reloaded models.Lead
	require.NoError(t, env.db.First(&reloaded, "id = ?", lead.ID).Error)
	assert.Equal(t, models.LeadStatusPending, reloaded.Status)
}

func TestSyntheticEmailNeverMatchesLeads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shop := seedShop(t, env)
	campaign := seedCampaignWithCoupon(t, env, shop, "March Promo", "Instagram", "YOGREET10")

	// A lead whose email happens to collide with a synthesized one.
	require.NoError(t, env.leadRepo.Create(ctx, &models.Lead{
		CampaignID: campaign.ID,
		Email:      "karan.sharma@shop-user.com",
	}))

	// Payload with no identity at all: name and email get synthesized
	// (order 123456742 yields Karan Sharma).
	order, err := env.reconciliation.ProcessOrder(ctx, shop, &shopify.OrderPayload{
		ID:         123456742,
		CreatedAt:  "2025-03-01T10:00:00Z",
		TotalPrice: "100.00",
	})
	require.NoError(t, err)

	assert.Equal(t, "karan.sharma@shop-user.com", order.CustomerEmail, "display email is synthetic")
	assert.Nil(t, order.CampaignID, "synthetic identity must not attribute")
	assert.Equal(t, "Organic", order.PlatformSource)
}
