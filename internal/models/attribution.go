package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lead statuses.
const (
	LeadStatusPending   = "PENDING"
	LeadStatusConverted = "CONVERTED"
	LeadStatusLost      = "LOST"
)

// Shop is a connected Shopify store. One row per store, read-mostly.
type Shop struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ShopifyDomain string    `gorm:"size:255;not null;uniqueIndex" json:"shopify_domain"`
	AccessToken   string    `gorm:"size:255" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Shop) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Campaign is a marketing campaign. It owns at most one coupon and many
// leads and orders.
type Campaign struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ShopID         *uuid.UUID `gorm:"type:uuid;index" json:"shop_id,omitempty"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	PlatformSource string     `gorm:"size:100" json:"platform_source"`
	Status         string     `gorm:"size:50;default:Active" json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Coupon *Coupon `gorm:"foreignKey:CampaignID" json:"coupon,omitempty"`
	Leads  []Lead  `gorm:"foreignKey:CampaignID" json:"leads,omitempty"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Coupon is a discount code tied to a shop and optionally a campaign.
// Code is unique per shop; matching always goes through the normalized
// form, the stored code keeps its original casing.
type Coupon struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ShopID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_coupons_shop_code" json:"shop_id"`
	Code       string     `gorm:"size:255;not null;uniqueIndex:idx_coupons_shop_code" json:"code"`
	CampaignID *uuid.UUID `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	Status     string     `gorm:"size:50;default:Active" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Lead is an uploaded prospect for a campaign. Unique per
// (campaign_id, email); phone is stored normalized.
type Lead struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	CampaignID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_leads_campaign_email" json:"campaign_id"`
	Name           string     `gorm:"size:255" json:"name"`
	Email          string     `gorm:"size:255;uniqueIndex:idx_leads_campaign_email" json:"email"`
	Phone          string     `gorm:"size:50;index" json:"phone"`
	PlatformSource string     `gorm:"size:100" json:"platform_source"`
	Status         string     `gorm:"size:50;default:PENDING;index" json:"status"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Order is a reconciled Shopify order. ShopifyOrderID is the external
// idempotency key; a second ingestion of the same id merges into this
// row, it never inserts a duplicate.
type Order struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ShopifyOrderID   string     `gorm:"size:64;not null;uniqueIndex" json:"shopify_order_id"`
	ShopID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"shop_id"`
	CustomerName     string     `gorm:"size:255" json:"customer_name"`
	CustomerEmail    string     `gorm:"size:255;index" json:"customer_email"`
	CustomerPhone    string     `gorm:"size:50;index" json:"customer_phone"`
	LineItems        string     `gorm:"type:text" json:"line_items"`
	TotalAmount      float64    `json:"total_amount"`
	FinancialStatus  string     `gorm:"size:50" json:"financial_status"`
	CouponCode       string     `gorm:"size:255" json:"coupon_code"`
	PlatformSource   string     `gorm:"size:100;default:Organic" json:"platform_source"`
	CampaignID       *uuid.UUID `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	ShopifyCreatedAt time.Time  `json:"shopify_created_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
