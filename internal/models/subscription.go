package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerSubscription statuses.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is an auto-derived recurring-purchase record, one per
// distinct product name (case-insensitive). It is never created by hand;
// the first purchase of a product creates it.
type Subscription struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProductName      string    `gorm:"size:255;not null" json:"product_name"`
	ProductNameLower string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	Price            float64   `gorm:"default:0" json:"price"`
	Currency         string    `gorm:"size:10;default:INR" json:"currency"`
	BillingInterval  string    `gorm:"size:20;default:monthly" json:"billing_interval"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	TotalSubscribers int       `gorm:"default:0" json:"total_subscribers"`
	TotalRevenue     float64   `gorm:"default:0" json:"total_revenue"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	CustomerSubscriptions []CustomerSubscription `gorm:"foreignKey:SubscriptionID" json:"-"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ProductNameLower == "" {
		s.ProductNameLower = strings.ToLower(strings.TrimSpace(s.ProductName))
	}
	return nil
}

// CustomerSubscription links a customer phone to a subscription. Unique
// per (customer_phone, subscription_id); repeat purchases renew this row
// instead of duplicating it. Cancellation keeps the row for history.
type CustomerSubscription struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	CustomerPhone     string     `gorm:"size:50;not null;index;uniqueIndex:idx_customer_subs_pair" json:"customer_phone"`
	SubscriptionID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_customer_subs_pair" json:"subscription_id"`
	ProductName       string     `gorm:"size:255" json:"product_name"`
	Price             float64    `gorm:"default:0" json:"price"`
	Status            string     `gorm:"size:20;default:active;index" json:"status"`
	StartDate         time.Time  `json:"start_date"`
	LastBillingDate   *time.Time `json:"last_billing_date,omitempty"`
	NextBillingDate   *time.Time `json:"next_billing_date,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	TotalOrdersOnPlan int        `gorm:"default:0" json:"total_orders_on_plan"`
	TotalSpentOnPlan  float64    `gorm:"default:0" json:"total_spent_on_plan"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
}

func (cs *CustomerSubscription) BeforeCreate(tx *gorm.DB) error {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	return nil
}
