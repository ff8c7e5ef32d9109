package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/normalize"
	"github.com/firstbud/attribution-service/internal/repository"
)

// CampaignHandler handles campaign, coupon and lead API requests
type CampaignHandler struct {
	campaignRepo *repository.CampaignRepository
	couponRepo   *repository.CouponRepository
	leadRepo     *repository.LeadRepository
	shopRepo     *repository.ShopRepository
	shopDomain   string
	logger       *zap.Logger
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(
	campaignRepo *repository.CampaignRepository,
	couponRepo *repository.CouponRepository,
	leadRepo *repository.LeadRepository,
	shopRepo *repository.ShopRepository,
	shopDomain string,
	logger *zap.Logger,
) *CampaignHandler {
	return &CampaignHandler{
		campaignRepo: campaignRepo,
		couponRepo:   couponRepo,
		leadRepo:     leadRepo,
		shopRepo:     shopRepo,
		shopDomain:   shopDomain,
		logger:       logger,
	}
}

// CreateCampaignRequest is the payload for creating a campaign
type CreateCampaignRequest struct {
	Name           string `json:"name" binding:"required"`
	PlatformSource string `json:"platform_source" binding:"required"`
}

// Create registers a new campaign
// POST /api/v1/campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and platform_source are required"})
		return
	}

	shop, err := h.shopRepo.GetByDomain(c.Request.Context(), h.shopDomain)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Shop is not connected yet"})
		return
	}

	campaign := &models.Campaign{
		Name:           req.Name,
		PlatformSource: req.PlatformSource,
		ShopID:         &shop.ID,
	}
	if err := h.campaignRepo.Create(c.Request.Context(), campaign); err != nil {
		h.logger.Error("Failed to create campaign", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

// List returns all campaigns with their coupons
// GET /api/v1/campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	campaigns, err := h.campaignRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list campaigns", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns, "total": len(campaigns)})
}

// Delete removes a campaign with its coupons and leads
// DELETE /api/v1/campaigns/:id
func (h *CampaignHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign ID"})
		return
	}

	if err := h.campaignRepo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete campaign", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Campaign deleted"})
}

// AttachCouponRequest assigns a discount code to a campaign
type AttachCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// AttachCoupon links a coupon to a campaign. A campaign owns at most one
// coupon, a second attach is rejected.
// POST /api/v1/campaigns/:id/coupon
func (h *CampaignHandler) AttachCoupon(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign ID"})
		return
	}

	var req AttachCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	shop, err := h.shopRepo.GetByDomain(c.Request.Context(), h.shopDomain)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Shop is not connected yet"})
		return
	}

	coupon := &models.Coupon{ShopID: shop.ID, Code: req.Code}
	if err := h.campaignRepo.AttachCoupon(c.Request.Context(), campaignID, coupon); err != nil {
		h.logger.Warn("Failed to attach coupon",
			zap.String("campaign_id", campaignID.String()), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

// LeadInput is one lead in an upload batch
type LeadInput struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required"`
	Phone string `json:"phone"`
}

// UploadLeadsRequest is a batch of leads for one campaign
type UploadLeadsRequest struct {
	Leads []LeadInput `json:"leads" binding:"required,min=1"`
}

// UploadLeads bulk-loads leads for a campaign. Duplicate emails within
// the campaign are skipped, so re-uploading a sheet is harmless.
// POST /api/v1/campaigns/:id/leads
func (h *CampaignHandler) UploadLeads(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign ID"})
		return
	}

	var req UploadLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "leads array is required"})
		return
	}

	campaign, err := h.campaignRepo.GetByID(c.Request.Context(), campaignID)
	if err != nil {
		if errors.Is(err, attribution.ErrCampaignNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	leads := make([]models.Lead, 0, len(req.Leads))
	for _, in := range req.Leads {
		leads = append(leads, models.Lead{
			CampaignID:     campaign.ID,
			Name:           in.Name,
			Email:          in.Email,
			Phone:          normalize.Phone(in.Phone),
			PlatformSource: campaign.PlatformSource,
			UploadedAt:     now,
		})
	}

	inserted, err := h.leadRepo.BulkInsert(c.Request.Context(), leads)
	if err != nil {
		h.logger.Error("Failed to insert leads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"inserted": inserted,
		"skipped":  int64(len(leads)) - inserted,
	})
}

// Leads pages through one campaign's leads with status counts
// GET /api/v1/campaigns/:id/leads
func (h *CampaignHandler) Leads(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign ID"})
		return
	}

	limit, offset := 50, 0
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if s := c.Query("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	leads, total, err := h.leadRepo.ListByCampaign(c.Request.Context(), campaignID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list leads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts, err := h.leadRepo.CountByStatus(c.Request.Context(), campaignID)
	if err != nil {
		h.logger.Error("Failed to count leads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leads":  leads,
		"total":  total,
		"counts": counts,
	})
}
