package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/repository"
)

// SubscriptionService derives recurring-purchase records from order
// activity. Subscriptions are never created by hand: the first purchase
// of a product name creates one, later purchases renew the customer's
// link to it.
type SubscriptionService struct {
	subRepo    *repository.SubscriptionRepository
	uploadRepo *repository.UploadRepository
	logger     *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(
	subRepo *repository.SubscriptionRepository,
	uploadRepo *repository.UploadRepository,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:    subRepo,
		uploadRepo: uploadRepo,
		logger:     logger,
	}
}

// GetOrCreate finds the subscription for a product name, creating it
// from the first observed price when absent. An existing subscription
// tracks the most recent observed price.
func (s *SubscriptionService) GetOrCreate(ctx context.Context, productName string, price float64) (*models.Subscription, error) {
	sub, err := s.subRepo.GetByProductName(ctx, productName)
	if err == nil {
		if price > 0 && sub.Price != price {
			sub.Price = price
			if err := s.subRepo.Save(ctx, sub); err != nil {
				return nil, err
			}
		}
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sub = &models.Subscription{ProductName: productName, Price: price}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		// Lost a create race; the winner's row is the one we want.
		if existing, getErr := s.subRepo.GetByProductName(ctx, productName); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info("subscription created from first purchase",
		zap.String("product_name", productName),
		zap.Float64("price", price),
	)
	return sub, nil
}

// LinkPurchase records one purchase of a product by a phone. A first
// purchase opens the customer's plan and counts a new subscriber; any
// later purchase of the same product is a renewal of the existing link,
// never a second link. Both paths roll the next billing date one month
// past the order date.
func (s *SubscriptionService) LinkPurchase(ctx context.Context, phone, productName string, price float64, orderDate time.Time) (*models.CustomerSubscription, error) {
	if phone == "" || productName == "" {
		return nil, nil
	}

	sub, err := s.GetOrCreate(ctx, productName, price)
	if err != nil {
		return nil, err
	}

	next := orderDate.AddDate(0, 1, 0)

	link, err := s.subRepo.GetLink(ctx, phone, sub.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		link = &models.CustomerSubscription{
			CustomerPhone:     phone,
			SubscriptionID:    sub.ID,
			ProductName:       sub.ProductName,
			Price:             price,
			Status:            models.SubscriptionStatusActive,
			StartDate:         orderDate,
			LastBillingDate:   &orderDate,
			NextBillingDate:   &next,
			TotalOrdersOnPlan: 1,
			TotalSpentOnPlan:  price,
		}
		if err := s.subRepo.CreateLink(ctx, link); err != nil {
			return nil, err
		}
		if err := s.subRepo.AddRevenue(ctx, sub.ID, price, true); err != nil {
			return nil, err
		}
		return link, nil
	}
	if err != nil {
		return nil, err
	}

	// Renewal. A cancelled plan that buys again comes back active and
	// counts as a subscriber again.
	wasCancelled := link.Status == models.SubscriptionStatusCancelled
	link.Status = models.SubscriptionStatusActive
	link.CancelledAt = nil
	link.TotalOrdersOnPlan++
	link.TotalSpentOnPlan += price
	if price > 0 {
		link.Price = price
	}
	link.LastBillingDate = &orderDate
	link.NextBillingDate = &next
	if err := s.subRepo.SaveLink(ctx, link); err != nil {
		return nil, err
	}
	if err := s.subRepo.AddRevenue(ctx, sub.ID, price, wasCancelled); err != nil {
		return nil, err
	}
	return link, nil
}

// Cancel marks a customer's plan cancelled and drops the product's
// subscriber count by one. The link row stays for history; a future
// purchase reactivates it. Cancelling an already-cancelled plan is a
// no-op.
func (s *SubscriptionService) Cancel(ctx context.Context, phone string, subscriptionID uuid.UUID) (*models.CustomerSubscription, error) {
	link, err := s.subRepo.GetLink(ctx, phone, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, attribution.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.Status == models.SubscriptionStatusCancelled {
		return link, nil
	}

	now := time.Now()
	link.Status = models.SubscriptionStatusCancelled
	link.CancelledAt = &now
	link.NextBillingDate = nil
	if err := s.subRepo.SaveLink(ctx, link); err != nil {
		return nil, err
	}
	if err := s.subRepo.AdjustSubscribers(ctx, subscriptionID, -1); err != nil {
		return nil, err
	}

	s.logger.Info("subscription cancelled",
		zap.String("customer_phone", phone),
		zap.String("subscription_id", subscriptionID.String()),
	)
	return link, nil
}

// List returns all subscriptions.
func (s *SubscriptionService) List(ctx context.Context) ([]models.Subscription, error) {
	return s.subRepo.List(ctx)
}

// ForCustomer returns one customer's plans with products preloaded.
func (s *SubscriptionService) ForCustomer(ctx context.Context, phone string) ([]models.CustomerSubscription, error) {
	return s.subRepo.LinksForCustomer(ctx, phone)
}

// Stats returns the subscription dashboard rollup.
func (s *SubscriptionService) Stats(ctx context.Context) (*repository.SubscriptionStats, error) {
	return s.subRepo.Stats(ctx)
}

// Rebuild recomputes every subscription and link from the surviving
// order records, replacing whatever incremental state accumulated. Used
// as the backfill after historical uploads and as the repair path when
// an upload deletion invalidates prior renewals.
func (s *SubscriptionService) Rebuild(ctx context.Context) error {
	subs, err := s.subRepo.List(ctx)
	if err != nil {
		return err
	}

	type planAgg struct {
		orders    int
		spent     float64
		first     time.Time
		last      time.Time
		firstSeen bool
	}

	// Walk every link we know about and re-derive its numbers from the
	// records that still exist.
	subTotals := make(map[uuid.UUID]struct {
		revenue     float64
		subscribers int
	})

	for _, sub := range subs {
		links, err := s.subRepo.LinksForSubscription(ctx, sub.ID, "")
		if err != nil {
			return err
		}
		for _, link := range links {
			records, err := s.uploadRepo.RemainingRecordsForPhone(ctx, link.CustomerPhone)
			if err != nil {
				return err
			}
			agg := &planAgg{}
			seenOrders := map[string]bool{}
			for _, rec := range records {
				if !matchesProduct(rec.ProductName, sub.ProductNameLower) {
					continue
				}
				if seenOrders[rec.OrderID] {
					continue
				}
				seenOrders[rec.OrderID] = true
				agg.orders++
				agg.spent += rec.OrderAmount
				if !agg.firstSeen || rec.OrderDate.Before(agg.first) {
					agg.first = rec.OrderDate
					agg.firstSeen = true
				}
				if rec.OrderDate.After(agg.last) {
					agg.last = rec.OrderDate
				}
			}
			if agg.orders == 0 {
				// No surviving evidence for this plan.
				link.Status = models.SubscriptionStatusCancelled
				if link.CancelledAt == nil {
					now := time.Now()
					link.CancelledAt = &now
				}
				link.NextBillingDate = nil
				link.TotalOrdersOnPlan = 0
				link.TotalSpentOnPlan = 0
			} else {
				next := agg.last.AddDate(0, 1, 0)
				link.TotalOrdersOnPlan = agg.orders
				link.TotalSpentOnPlan = agg.spent
				link.StartDate = agg.first
				link.LastBillingDate = &agg.last
				if link.Status == models.SubscriptionStatusActive {
					link.NextBillingDate = &next
				}
				totals := subTotals[sub.ID]
				totals.revenue += agg.spent
				if link.Status == models.SubscriptionStatusActive {
					totals.subscribers++
				}
				subTotals[sub.ID] = totals
			}
			if err := s.subRepo.SaveLink(ctx, &link); err != nil {
				return err
			}
		}
	}

	for i := range subs {
		totals := subTotals[subs[i].ID]
		subs[i].TotalRevenue = totals.revenue
		subs[i].TotalSubscribers = totals.subscribers
		if err := s.subRepo.Save(ctx, &subs[i]); err != nil {
			return err
		}
	}

	s.logger.Info("subscriptions rebuilt", zap.Int("subscriptions", len(subs)))
	return nil
}

func matchesProduct(recordProduct, productLower string) bool {
	return productLower != "" && strings.ToLower(strings.TrimSpace(recordProduct)) == productLower
}
