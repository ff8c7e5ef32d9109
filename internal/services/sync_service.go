package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/events"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/shopify"
)

// OrderLister is the slice of the admin API client the sync consumes.
type OrderLister interface {
	ListOrders(ctx context.Context, maxOrders int) ([]shopify.OrderPayload, error)
	ListPriceRules(ctx context.Context) ([]shopify.PriceRule, error)
	ListDiscountCodes(ctx context.Context, priceRuleID int64) ([]shopify.RuleDiscountCode, error)
}

// SyncService polls the admin API for discount codes and recent orders.
// It is the safety net under webhooks: any delivery that was missed gets
// picked up on the next pass.
type SyncService struct {
	client         OrderLister
	shopRepo       *repository.ShopRepository
	couponRepo     *repository.CouponRepository
	campaignRepo   *repository.CampaignRepository
	reconciliation *ReconciliationService
	logger         *zap.Logger

	shopDomain  string
	accessToken string
	maxOrders   int
}

// SyncServiceConfig holds configuration
type SyncServiceConfig struct {
	ShopDomain  string
	AccessToken string
	MaxOrders   int
}

// NewSyncService creates a new SyncService
func NewSyncService(
	client OrderLister,
	shopRepo *repository.ShopRepository,
	couponRepo *repository.CouponRepository,
	campaignRepo *repository.CampaignRepository,
	reconciliation *ReconciliationService,
	cfg *SyncServiceConfig,
	logger *zap.Logger,
) *SyncService {
	maxOrders := cfg.MaxOrders
	if maxOrders <= 0 {
		maxOrders = 250
	}
	return &SyncService{
		client:         client,
		shopRepo:       shopRepo,
		couponRepo:     couponRepo,
		campaignRepo:   campaignRepo,
		reconciliation: reconciliation,
		logger:         logger,
		shopDomain:     cfg.ShopDomain,
		accessToken:    cfg.AccessToken,
		maxOrders:      maxOrders,
	}
}

// SyncResult summarizes one pass.
type SyncResult struct {
	CouponsSynced int `json:"coupons_synced"`
	OrdersSynced  int `json:"orders_synced"`
	OrdersFailed  int `json:"orders_failed"`
}

// Run executes one full pass: coupons first so freshly created codes
// attribute the orders fetched right after, then recent orders. A
// per-order failure is logged and skipped; one bad payload must not
// starve the rest of the page.
func (s *SyncService) Run(ctx context.Context) (*SyncResult, error) {
	shop, err := s.shopRepo.EnsureShop(ctx, s.shopDomain, s.accessToken)
	if err != nil {
		return nil, err
	}

	// A rotated admin token in the config wins over the stored one.
	if s.accessToken != "" && shop.AccessToken != s.accessToken {
		if err := s.shopRepo.UpdateAccessToken(ctx, shop, s.accessToken); err != nil {
			return nil, err
		}
	}

	result := &SyncResult{}

	coupons, err := s.syncCoupons(ctx, shop)
	if err != nil {
		// Coupon sync failing is not fatal for order ingestion; existing
		// coupons still match.
		s.logger.Warn("coupon sync failed", zap.Error(err))
	}
	result.CouponsSynced = coupons

	orders, err := s.client.ListOrders(ctx, s.maxOrders)
	if err != nil && len(orders) == 0 {
		return result, err
	}

	for i := range orders {
		if _, err := s.reconciliation.ProcessOrder(ctx, shop, &orders[i]); err != nil {
			result.OrdersFailed++
			s.logger.Warn("failed to process order during sync",
				zap.String("shopify_order_id", orders[i].OrderID()),
				zap.Error(err),
			)
			continue
		}
		result.OrdersSynced++
	}

	s.logger.Info("sync pass finished",
		zap.Int("coupons", result.CouponsSynced),
		zap.Int("orders", result.OrdersSynced),
		zap.Int("failed", result.OrdersFailed),
	)
	return result, nil
}

// syncCoupons imports every discount code under every price rule.
// Imported codes land on the shop's default campaign; codes already
// assigned elsewhere keep their campaign, the upsert only refreshes
// status.
func (s *SyncService) syncCoupons(ctx context.Context, shop *models.Shop) (int, error) {
	rules, err := s.client.ListPriceRules(ctx)
	if err != nil {
		return 0, err
	}

	defaultCampaign, err := s.campaignRepo.EnsureDefault(ctx, shop.ID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, rule := range rules {
		codes, err := s.client.ListDiscountCodes(ctx, rule.ID)
		if err != nil {
			s.logger.Warn("failed to list discount codes",
				zap.Int64("price_rule_id", rule.ID), zap.Error(err))
			continue
		}
		for _, code := range codes {
			coupon := &models.Coupon{
				ShopID:     shop.ID,
				Code:       code.Code,
				CampaignID: &defaultCampaign.ID,
				Status:     "Active",
			}
			if err := s.couponRepo.Upsert(ctx, coupon); err != nil {
				s.logger.Warn("failed to upsert coupon",
					zap.String("code", code.Code), zap.Error(err))
				continue
			}
			synced++
		}
	}
	return synced, nil
}

// HandleSyncRequested lets other services trigger an immediate pass over
// NATS. Implements events.SyncHandler.
func (s *SyncService) HandleSyncRequested(event *events.SyncRequestedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, err := s.Run(ctx)
	return err
}
