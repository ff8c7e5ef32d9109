package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/models"
)

// SubscriptionRepository persists product subscriptions and the
// customer links hanging off them.
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByProductName finds a subscription by case-insensitive product name.
func (r *SubscriptionRepository) GetByProductName(ctx context.Context, productName string) (*models.Subscription, error) {
	var sub models.Subscription
	lower := strings.ToLower(strings.TrimSpace(productName))
	if err := r.db.WithContext(ctx).Where("product_name_lower = ?", lower).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByID loads one subscription.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create inserts a new product subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// Save writes back a subscription's mutable columns.
func (r *SubscriptionRepository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// List returns all subscriptions, most subscribed first.
func (r *SubscriptionRepository) List(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Order("total_subscribers DESC, created_at ASC").Find(&subs).Error
	return subs, err
}

// AddRevenue atomically bumps a subscription's counters. The subscriber
// count only moves when a new customer link is created.
func (r *SubscriptionRepository) AddRevenue(ctx context.Context, id uuid.UUID, amount float64, newSubscriber bool) error {
	updates := map[string]interface{}{
		"total_revenue": gorm.Expr("total_revenue + ?", amount),
	}
	if newSubscriber {
		updates["total_subscribers"] = gorm.Expr("total_subscribers + 1")
	}
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AdjustSubscribers atomically moves the subscriber count, used when a
// link is cancelled or reactivated.
func (r *SubscriptionRepository) AdjustSubscribers(ctx context.Context, id uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("total_subscribers", gorm.Expr("total_subscribers + ?", delta)).Error
}

// GetLink finds the customer-subscription pair row.
func (r *SubscriptionRepository) GetLink(ctx context.Context, phone string, subscriptionID uuid.UUID) (*models.CustomerSubscription, error) {
	var link models.CustomerSubscription
	err := r.db.WithContext(ctx).
		Where("customer_phone = ? AND subscription_id = ?", phone, subscriptionID).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// CreateLink inserts a new customer-subscription pair.
func (r *SubscriptionRepository) CreateLink(ctx context.Context, link *models.CustomerSubscription) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// SaveLink writes back a renewed or cancelled pair row.
func (r *SubscriptionRepository) SaveLink(ctx context.Context, link *models.CustomerSubscription) error {
	return r.db.WithContext(ctx).Save(link).Error
}

// LinksForCustomer returns one customer's subscription history with the
// product subscriptions preloaded.
func (r *SubscriptionRepository) LinksForCustomer(ctx context.Context, phone string) ([]models.CustomerSubscription, error) {
	var links []models.CustomerSubscription
	err := r.db.WithContext(ctx).
		Preload("Subscription").
		Where("customer_phone = ?", phone).
		Order("start_date ASC").
		Find(&links).Error
	return links, err
}

// LinksForSubscription returns a subscription's customer links,
// optionally filtered by status.
func (r *SubscriptionRepository) LinksForSubscription(ctx context.Context, subscriptionID uuid.UUID, status string) ([]models.CustomerSubscription, error) {
	q := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var links []models.CustomerSubscription
	err := q.Order("start_date ASC").Find(&links).Error
	return links, err
}

// SubscriptionStats is the dashboard rollup over all subscriptions.
type SubscriptionStats struct {
	TotalSubscriptions int64   `json:"totalSubscriptions"`
	ActiveLinks        int64   `json:"activeLinks"`
	CancelledLinks     int64   `json:"cancelledLinks"`
	TotalRevenue       float64 `json:"totalRevenue"`
}

// Stats aggregates the subscription tables.
func (r *SubscriptionRepository) Stats(ctx context.Context) (*SubscriptionStats, error) {
	var stats SubscriptionStats
	if err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("COUNT(*) AS total_subscriptions, COALESCE(SUM(total_revenue), 0) AS total_revenue").
		Scan(&stats).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.CustomerSubscription{}).
		Where("status = ?", models.SubscriptionStatusActive).
		Count(&stats.ActiveLinks).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.CustomerSubscription{}).
		Where("status = ?", models.SubscriptionStatusCancelled).
		Count(&stats.CancelledLinks).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
