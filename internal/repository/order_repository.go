package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/models"
)

// OrderRepository persists attributed shop orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByShopifyOrderID finds the stored order for an external order id.
func (r *OrderRepository) GetByShopifyOrderID(ctx context.Context, shopifyOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("shopify_order_id = ?", shopifyOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Create inserts a freshly attributed order.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Save writes back all mutable columns of an existing order.
func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// OrderFilter narrows List and revenue aggregates.
type OrderFilter struct {
	ShopID         *uuid.UUID
	CampaignID     *uuid.UUID
	PlatformSource string
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

func (f OrderFilter) apply(q *gorm.DB) *gorm.DB {
	if f.ShopID != nil {
		q = q.Where("shop_id = ?", *f.ShopID)
	}
	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.PlatformSource != "" {
		q = q.Where("platform_source = ?", f.PlatformSource)
	}
	if f.Since != nil {
		q = q.Where("shopify_created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("shopify_created_at < ?", *f.Until)
	}
	return q
}

// List pages through orders newest first, with the total matching count.
func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	base := filter.apply(r.db.WithContext(ctx).Model(&models.Order{}))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var orders []models.Order
	err := base.Order("shopify_created_at DESC").Limit(limit).Offset(filter.Offset).Find(&orders).Error
	return orders, total, err
}

// SourceBreakdown aggregates order count and revenue per platform source.
type SourceBreakdown struct {
	PlatformSource string  `json:"platformSource"`
	Orders         int64   `json:"orders"`
	Revenue        float64 `json:"revenue"`
}

// RevenueBySource groups matching orders by attributed platform.
func (r *OrderRepository) RevenueBySource(ctx context.Context, filter OrderFilter) ([]SourceBreakdown, error) {
	var rows []SourceBreakdown
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Order{})).
		Select("platform_source, COUNT(*) AS orders, COALESCE(SUM(total_amount), 0) AS revenue").
		Group("platform_source").
		Order("revenue DESC").
		Scan(&rows).Error
	return rows, err
}

// CampaignPerformance is one campaign's order/revenue rollup.
type CampaignPerformance struct {
	CampaignID uuid.UUID `json:"campaignId"`
	Orders     int64     `json:"orders"`
	Revenue    float64   `json:"revenue"`
}

// RevenueByCampaign groups attributed orders per campaign. Orders
// without a campaign are excluded.
func (r *OrderRepository) RevenueByCampaign(ctx context.Context, filter OrderFilter) ([]CampaignPerformance, error) {
	var rows []CampaignPerformance
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Order{})).
		Where("campaign_id IS NOT NULL").
		Select("campaign_id, COUNT(*) AS orders, COALESCE(SUM(total_amount), 0) AS revenue").
		Group("campaign_id").
		Order("revenue DESC").
		Scan(&rows).Error
	return rows, err
}
