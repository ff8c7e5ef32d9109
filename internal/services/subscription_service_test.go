package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
)

func TestLinkPurchaseCreatesThenRenews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	link, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 499, jan)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, 1, link.TotalOrdersOnPlan)
	assert.Equal(t, models.SubscriptionStatusActive, link.Status)
	require.NotNil(t, link.NextBillingDate)
	assert.Equal(t, jan.AddDate(0, 1, 0), *link.NextBillingDate)

	sub, err := env.subRepo.GetByProductName(ctx, "herbal tea")
	require.NoError(t, err)
	assert.Equal(t, "Herbal Tea", sub.ProductName)
	assert.Equal(t, 1, sub.TotalSubscribers)
	assert.Equal(t, 499.0, sub.TotalRevenue)

	// Second purchase renews the existing link, never a second row.
	link, err = env.subscriptions.LinkPurchase(ctx, "9876543210", "HERBAL TEA", 499, feb)
	require.NoError(t, err)
	assert.Equal(t, 2, link.TotalOrdersOnPlan)
	assert.Equal(t, 998.0, link.TotalSpentOnPlan)
	assert.Equal(t, feb.AddDate(0, 1, 0), *link.NextBillingDate)

	sub, err = env.subRepo.GetByProductName(ctx, "Herbal Tea")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalSubscribers, "renewal is not a new subscriber")
	assert.Equal(t, 998.0, sub.TotalRevenue)

	var linkCount int64
	require.NoError(t, env.db.Model(&models.CustomerSubscription{}).Count(&linkCount).Error)
	assert.EqualValues(t, 1, linkCount)
}

func TestLinkPurchaseSecondCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 499, day)
	require.NoError(t, err)
	_, err = env.subscriptions.LinkPurchase(ctx, "9123456780", "Herbal Tea", 499, day)
	require.NoError(t, err)

	sub, err := env.subRepo.GetByProductName(ctx, "Herbal Tea")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.TotalSubscribers)
}

func TestCancelAndReactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	link, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 499, jan)
	require.NoError(t, err)

	cancelled, err := env.subscriptions.Cancel(ctx, "9876543210", link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextBillingDate)
	assert.NotNil(t, cancelled.CancelledAt)

	sub, err := env.subRepo.GetByID(ctx, link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.TotalSubscribers, "cancellation frees the subscriber slot")

	// A second cancel changes nothing.
	_, err = env.subscriptions.Cancel(ctx, "9876543210", link.SubscriptionID)
	require.NoError(t, err)
	sub, err = env.subRepo.GetByID(ctx, link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.TotalSubscribers)

	// Buying again brings the same link back to life.
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	reactivated, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 499, mar)
	require.NoError(t, err)
	assert.Equal(t, link.ID, reactivated.ID)
	assert.Equal(t, models.SubscriptionStatusActive, reactivated.Status)
	assert.Nil(t, reactivated.CancelledAt)
	assert.Equal(t, 2, reactivated.TotalOrdersOnPlan)

	sub, err = env.subRepo.GetByID(ctx, link.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalSubscribers, "reactivation counts the subscriber again")
}

func TestPriceTracksLatestPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 499, jan)
	require.NoError(t, err)

	link, err := env.subscriptions.LinkPurchase(ctx, "9876543210", "Herbal Tea", 599, feb)
	require.NoError(t, err)
	assert.Equal(t, 599.0, link.Price)

	sub, err := env.subRepo.GetByProductName(ctx, "Herbal Tea")
	require.NoError(t, err)
	assert.Equal(t, 599.0, sub.Price)
}

func TestCancelUnknownPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := &models.Subscription{ProductName: "Herbal Tea"}
	require.NoError(t, env.subRepo.Create(ctx, sub))

	_, err := env.subscriptions.Cancel(ctx, "0000000000", sub.ID)
	assert.ErrorIs(t, err, attribution.ErrSubscriptionNotFound)
}

func TestRebuildRepairsCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Ingest builds plans from the CSV, then an artificial inflation of
	// the counters gets corrected by a rebuild from the surviving records.
	processUpload(t, env, exportCSV)

	subID := mustSubID(t, env, "Herbal Tea")
	require.NoError(t, env.subRepo.AddRevenue(ctx, subID, 10000, true))

	require.NoError(t, env.subscriptions.Rebuild(ctx))

	sub, err := env.subRepo.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalSubscribers)
	assert.Equal(t, 998.0, sub.TotalRevenue)

	link, err := env.subRepo.GetLink(ctx, "9876543210", subID)
	require.NoError(t, err)
	assert.Equal(t, 2, link.TotalOrdersOnPlan)
	assert.Equal(t, 998.0, link.TotalSpentOnPlan)
}
