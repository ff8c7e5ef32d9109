package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/shopify"
)

type fakeAdminAPI struct {
	orders    []shopify.OrderPayload
	rules     []shopify.PriceRule
	codes     map[int64][]shopify.RuleDiscountCode
	ordersErr error
}

func (f *fakeAdminAPI) ListOrders(ctx context.Context, maxOrders int) ([]shopify.OrderPayload, error) {
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	if maxOrders > 0 && len(f.orders) > maxOrders {
		return f.orders[:maxOrders], nil
	}
	return f.orders, nil
}

func (f *fakeAdminAPI) ListPriceRules(ctx context.Context) ([]shopify.PriceRule, error) {
	return f.rules, nil
}

func (f *fakeAdminAPI) ListDiscountCodes(ctx context.Context, priceRuleID int64) ([]shopify.RuleDiscountCode, error) {
	return f.codes[priceRuleID], nil
}

func newSyncEnv(t *testing.T, api *fakeAdminAPI) (*testEnv, *SyncService) {
	t.Helper()
	env := newTestEnv(t)
	svc := NewSyncService(
		api, env.shopRepo, env.couponRepo, env.campaignRepo, env.reconciliation,
		&SyncServiceConfig{ShopDomain: "tea-store", AccessToken: "token"},
		zap.NewNop(),
	)
	return env, svc
}

func TestSyncRunImportsCouponsAndOrders(t *testing.T) {
	api := &fakeAdminAPI{
		rules: []shopify.PriceRule{{ID: 1, Title: "March"}},
		codes: map[int64][]shopify.RuleDiscountCode{
			1: {{ID: 11, Code: "YOGREET10"}},
		},
		orders: []shopify.OrderPayload{
			*orderPayload(9001, "yogreet-10"),
			*orderPayload(9002, ""),
		},
	}
	env, svc := newSyncEnv(t, api)
	ctx := context.Background()

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CouponsSynced)
	assert.Equal(t, 2, result.OrdersSynced)
	assert.Equal(t, 0, result.OrdersFailed)

	// Imported codes land on the default campaign, so a coupon order
	// attributes on the very same pass.
	shop, err := env.shopRepo.GetByDomain(ctx, "tea-store")
	require.NoError(t, err)
	coupon, err := env.couponRepo.FindByNormalizedCode(ctx, shop.ID, "YOGREET-10")
	require.NoError(t, err)
	require.NotNil(t, coupon.CampaignID)

	order, err := env.orderRepo.GetByShopifyOrderID(ctx, "9001")
	require.NoError(t, err)
	require.NotNil(t, order.CampaignID)
	assert.Equal(t, *coupon.CampaignID, *order.CampaignID)

	organic, err := env.orderRepo.GetByShopifyOrderID(ctx, "9002")
	require.NoError(t, err)
	assert.Equal(t, "Organic", organic.PlatformSource)
}

func TestSyncRunIsRepeatable(t *testing.T) {
	api := &fakeAdminAPI{
		orders: []shopify.OrderPayload{*orderPayload(9001, "")},
	}
	env, svc := newSyncEnv(t, api)
	ctx := context.Background()

	_, err := svc.Run(ctx)
	require.NoError(t, err)
	_, err = svc.Run(ctx)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var shops int64
	require.NoError(t, env.db.Model(&models.Shop{}).Count(&shops).Error)
	assert.EqualValues(t, 1, shops, "EnsureShop never duplicates the store row")
}

func TestSyncRunSurfacesOrderListError(t *testing.T) {
	api := &fakeAdminAPI{ordersErr: errors.New("boom")}
	_, svc := newSyncEnv(t, api)

	_, err := svc.Run(context.Background())
	assert.Error(t, err)
}

func TestSyncRunRefreshesAccessToken(t *testing.T) {
	env, svc := newSyncEnv(t, &fakeAdminAPI{})
	ctx := context.Background()

	// The shop connected with an old token; the configured one wins.
	_, err := env.shopRepo.EnsureShop(ctx, "tea-store", "stale-token")
	require.NoError(t, err)

	_, err = svc.Run(ctx)
	require.NoError(t, err)

	shop, err := env.shopRepo.GetByDomain(ctx, "tea-store")
	require.NoError(t, err)
	assert.Equal(t, "token", shop.AccessToken)
}

func TestLookupsReturnDomainErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.shopRepo.GetByDomain(ctx, "missing-store")
	assert.ErrorIs(t, err, attribution.ErrShopNotFound)

	_, err = env.campaignRepo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, attribution.ErrCampaignNotFound)
}
