package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/normalize"
)

// CampaignRepository persists campaigns and their coupons/leads.
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new CampaignRepository.
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetByID loads one campaign with its coupon.
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Preload("Coupon").First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, attribution.ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// List returns all campaigns with coupons, newest first.
func (r *CampaignRepository) List(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).Preload("Coupon").Order("created_at DESC").Find(&campaigns).Error
	return campaigns, err
}

// Create persists a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// EnsureDefault returns the fallback campaign imported coupons attach
// to, creating it on first use.
func (r *CampaignRepository) EnsureDefault(ctx context.Context, shopID uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Where("name = ? AND shop_id = ?", "General Promotion", shopID).
		First(&campaign).Error
	if err == nil {
		return &campaign, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	campaign = models.Campaign{Name: "General Promotion", PlatformSource: "Shopify", ShopID: &shopID}
	if err := r.db.WithContext(ctx).Create(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// Delete removes a campaign and its dependent leads and coupons.
func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&models.Lead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&models.Coupon{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Campaign{}, "id = ?", id).Error
	})
}

// AttachCoupon enforces the 1:1 campaign-coupon ownership in the write
// path: a campaign that already owns a coupon rejects a second one.
func (r *CampaignRepository) AttachCoupon(ctx context.Context, campaignID uuid.UUID, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Coupon{}).Where("campaign_id = ?", campaignID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.New("campaign already owns a coupon")
		}
		coupon.CampaignID = &campaignID
		return tx.Create(coupon).Error
	})
}

// CouponRepository persists discount codes.
type CouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a new CouponRepository.
func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// ListByShop returns all coupons of a shop with campaigns preloaded,
// the working set the resolver matches normalized codes against.
func (r *CouponRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).Preload("Campaign").Where("shop_id = ?", shopID).Find(&coupons).Error
	return coupons, err
}

// Upsert inserts a coupon or, when (shop_id, code) already exists,
// refreshes its status.
func (r *CouponRepository) Upsert(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(coupon).Error
}

// FindByNormalizedCode scans a shop's coupons for a normalized-form
// match. Matching is by canonical form, never the raw string.
func (r *CouponRepository) FindByNormalizedCode(ctx context.Context, shopID uuid.UUID, code string) (*models.Coupon, error) {
	coupons, err := r.ListByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	normalized := normalize.CouponCode(code)
	for i := range coupons {
		if normalize.CouponCode(coupons[i].Code) == normalized {
			return &coupons[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
