package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/events"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/normalize"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/shopify"
	"github.com/firstbud/attribution-service/internal/utils"
)

// ReconciliationService turns raw order payloads into attributed order
// rows. Webhook deliveries and the background poll both land here, so
// processing the same order any number of times must converge on one row.
type ReconciliationService struct {
	orderRepo  *repository.OrderRepository
	couponRepo *repository.CouponRepository
	leadRepo   *repository.LeadRepository
	publisher  *events.Publisher
	orderLocks *utils.KeyMutex
	logger     *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	orderRepo *repository.OrderRepository,
	couponRepo *repository.CouponRepository,
	leadRepo *repository.LeadRepository,
	publisher *events.Publisher,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		orderRepo:  orderRepo,
		couponRepo: couponRepo,
		leadRepo:   leadRepo,
		publisher:  publisher,
		orderLocks: utils.NewKeyMutex(64),
		logger:     logger,
	}
}

// ProcessOrder ingests one order payload for a shop: extracts the
// customer identity, resolves the attribution and upserts the order row.
// Concurrent deliveries of the same order are serialized per order id.
func (s *ReconciliationService) ProcessOrder(ctx context.Context, shop *models.Shop, payload *shopify.OrderPayload) (*models.Order, error) {
	orderID := payload.OrderID()
	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	identity := shopify.ExtractIdentity(payload)

	coupons, err := s.couponRepo.ListByShop(ctx, shop.ID)
	if err != nil {
		return nil, err
	}

	// Lead matching only ever sees raw payload identity, never the
	// synthesized display values.
	result, err := attribution.Resolve(attribution.Input{
		DiscountCodes: payload.DiscountCodeList(),
		Email:         identity.RawEmail,
		Phone:         identity.Phone,
	}, coupons, s.findPendingLead(ctx))
	if err != nil {
		return nil, err
	}

	existing, err := s.orderRepo.GetByShopifyOrderID(ctx, orderID)
	switch {
	case err == nil:
		return s.mergeOrder(ctx, existing, payload, identity, result)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createOrder(ctx, shop, orderID, payload, identity, result)
	default:
		return nil, err
	}
}

func (s *ReconciliationService) createOrder(
	ctx context.Context,
	shop *models.Shop,
	orderID string,
	payload *shopify.OrderPayload,
	identity shopify.Identity,
	result attribution.Result,
) (*models.Order, error) {
	createdAt := payload.CreatedAtTime()

	order := &models.Order{
		ShopifyOrderID:   orderID,
		ShopID:           shop.ID,
		CustomerName:     identity.Name,
		CustomerEmail:    identity.Email,
		CustomerPhone:    normalize.Phone(identity.Phone),
		LineItems:        payload.LineItemTitles(),
		TotalAmount:      payload.TotalAmount(),
		FinancialStatus:  payload.FinancialStatus,
		CouponCode:       result.CouponCode,
		PlatformSource:   result.PlatformSource,
		CampaignID:       result.CampaignID,
		ShopifyCreatedAt: createdAt,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("attributed new order",
		zap.String("shopify_order_id", orderID),
		zap.String("platform_source", order.PlatformSource),
		zap.String("coupon_code", order.CouponCode),
	)

	s.maybeConvertLead(ctx, order, identity)

	_ = s.publisher.PublishOrderAttributed(&events.OrderAttributedEvent{
		OrderID:        order.ID,
		ShopifyOrderID: order.ShopifyOrderID,
		PlatformSource: order.PlatformSource,
		CampaignID:     order.CampaignID,
		CouponCode:     order.CouponCode,
		TotalAmount:    order.TotalAmount,
	})
	return order, nil
}

// mergeOrder folds a re-delivered payload into the stored row without
// regressing it: attribution never moves from a campaign back to
// Organic, and real identity values never yield to synthesized ones.
func (s *ReconciliationService) mergeOrder(
	ctx context.Context,
	order *models.Order,
	payload *shopify.OrderPayload,
	identity shopify.Identity,
	result attribution.Result,
) (*models.Order, error) {
	order.FinancialStatus = payload.FinancialStatus
	order.TotalAmount = payload.TotalAmount()
	if items := payload.LineItemTitles(); items != "" {
		order.LineItems = items
	}

	if !identity.SyntheticName {
		order.CustomerName = identity.Name
	}
	if !identity.SyntheticEmail {
		order.CustomerEmail = identity.Email
	}
	if phone := normalize.Phone(identity.Phone); phone != "" {
		order.CustomerPhone = phone
	}

	if result.CouponCode != "" {
		order.CouponCode = result.CouponCode
	}
	if result.CampaignID != nil {
		order.CampaignID = result.CampaignID
		order.PlatformSource = result.PlatformSource
	} else if order.CampaignID == nil && result.PlatformSource != attribution.PlatformOrganic {
		order.PlatformSource = result.PlatformSource
	}

	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, err
	}

	s.maybeConvertLead(ctx, order, identity)

	_ = s.publisher.PublishOrderAttributed(&events.OrderAttributedEvent{
		OrderID:        order.ID,
		ShopifyOrderID: order.ShopifyOrderID,
		PlatformSource: order.PlatformSource,
		CampaignID:     order.CampaignID,
		CouponCode:     order.CouponCode,
		TotalAmount:    order.TotalAmount,
	})
	return order, nil
}

// maybeConvertLead flips a pending lead to CONVERTED, but only on the
// full conjunction: the order carries a coupon, that coupon resolved to
// a campaign, and the matched lead belongs to that same campaign.
// Lead-fallback attribution alone never converts.
func (s *ReconciliationService) maybeConvertLead(ctx context.Context, order *models.Order, identity shopify.Identity) {
	if order.CouponCode == "" || order.CampaignID == nil {
		return
	}

	lead, err := s.leadRepo.FindPendingByEmailOrPhone(ctx, identity.RawEmail, normalize.Phone(identity.Phone))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("lead lookup failed during conversion", zap.Error(err))
		}
		return
	}
	if lead.CampaignID != *order.CampaignID {
		return
	}

	if err := s.leadRepo.MarkConverted(ctx, lead.ID); err != nil {
		s.logger.Warn("failed to mark lead converted",
			zap.String("lead_id", lead.ID.String()), zap.Error(err))
		return
	}

	s.logger.Info("lead converted",
		zap.String("lead_id", lead.ID.String()),
		zap.String("shopify_order_id", order.ShopifyOrderID),
	)

	_ = s.publisher.PublishLeadConverted(&events.LeadConvertedEvent{
		LeadID:     lead.ID,
		CampaignID: lead.CampaignID,
		OrderID:    order.ID,
	})
}

// findPendingLead adapts the lead repository to the resolver's lookup
// shape, translating a not-found row into a clean miss.
func (s *ReconciliationService) findPendingLead(ctx context.Context) attribution.LeadLookup {
	return func(email, phone string) (*models.Lead, error) {
		lead, err := s.leadRepo.FindPendingByEmailOrPhone(ctx, email, phone)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return lead, nil
	}
}
