// Package repository holds the named query functions per entity. Each
// repository wraps the shared *gorm.DB handle; callers get exactly the
// projection they ask for, no implicit eager loading.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
)

// ShopRepository persists connected shops.
type ShopRepository struct {
	db *gorm.DB
}

// NewShopRepository creates a new ShopRepository.
func NewShopRepository(db *gorm.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

// GetByDomain finds a shop by its unique shopify domain.
func (r *ShopRepository) GetByDomain(ctx context.Context, domain string) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("shopify_domain = ?", domain).First(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, attribution.ErrShopNotFound
		}
		return nil, err
	}
	return &shop, nil
}

// EnsureShop creates the shop row for a domain if it does not exist yet
// and returns it.
func (r *ShopRepository) EnsureShop(ctx context.Context, domain, accessToken string) (*models.Shop, error) {
	shop, err := r.GetByDomain(ctx, domain)
	if err == nil {
		return shop, nil
	}
	if !errors.Is(err, attribution.ErrShopNotFound) {
		return nil, err
	}
	created := models.Shop{ShopifyDomain: domain, AccessToken: accessToken}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateAccessToken persists a refreshed admin token.
func (r *ShopRepository) UpdateAccessToken(ctx context.Context, shop *models.Shop, token string) error {
	shop.AccessToken = token
	return r.db.WithContext(ctx).Model(shop).Update("access_token", token).Error
}
