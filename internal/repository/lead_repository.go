package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
)

// LeadRepository persists uploaded campaign leads.
type LeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create inserts a single lead. A duplicate (campaign_id, email) pair
// maps to attribution.ErrDuplicateLead.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	err := r.db.WithContext(ctx).Create(lead).Error
	if err != nil && isUniqueViolation(err) {
		return attribution.ErrDuplicateLead
	}
	return err
}

// BulkInsert loads a batch of leads, silently skipping duplicates so a
// re-uploaded sheet is idempotent. Returns the number actually inserted.
func (r *LeadRepository) BulkInsert(ctx context.Context, leads []models.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "email"}},
		DoNothing: true,
	}).Create(&leads)
	return res.RowsAffected, res.Error
}

// FindPendingByEmailOrPhone returns the most recently uploaded PENDING
// lead matching either identity. Both arguments may be empty; empty
// values never match.
func (r *LeadRepository) FindPendingByEmailOrPhone(ctx context.Context, email, phone string) (*models.Lead, error) {
	query := r.db.WithContext(ctx).Where("status = ?", models.LeadStatusPending)

	switch {
	case email != "" && phone != "":
		query = query.Where("LOWER(email) = ? OR phone = ?", strings.ToLower(email), phone)
	case email != "":
		query = query.Where("LOWER(email) = ?", strings.ToLower(email))
	case phone != "":
		query = query.Where("phone = ?", phone)
	default:
		return nil, gorm.ErrRecordNotFound
	}

	var lead models.Lead
	if err := query.Order("uploaded_at DESC").First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// MarkConverted flips a lead to CONVERTED.
func (r *LeadRepository) MarkConverted(ctx context.Context, leadID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Lead{}).
		Where("id = ?", leadID).
		Updates(map[string]interface{}{
			"status":     models.LeadStatusConverted,
			"updated_at": time.Now(),
		}).Error
}

// ListByCampaign pages through one campaign's leads, newest upload first.
func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]models.Lead, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&models.Lead{}).Where("campaign_id = ?", campaignID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var leads []models.Lead
	err := base.Order("uploaded_at DESC").Limit(limit).Offset(offset).Find(&leads).Error
	return leads, total, err
}

// CountByStatus groups one campaign's leads by status.
func (r *LeadRepository) CountByStatus(ctx context.Context, campaignID uuid.UUID) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Lead{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// isUniqueViolation matches unique-constraint failures across the
// postgres and sqlite drivers without importing either error type.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
