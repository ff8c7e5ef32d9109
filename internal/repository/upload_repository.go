package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/firstbud/attribution-service/internal/models"
)

// UploadRepository persists CSV ingestion batches and their per-line
// order records and per-upload analysis snapshots.
type UploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create registers a new upload in PROCESSING state.
func (r *UploadRepository) Create(ctx context.Context, upload *models.CSVUpload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// GetByID loads one upload.
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CSVUpload, error) {
	var upload models.CSVUpload
	if err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

// UploadSummary is an upload plus its stored record/customer counts.
type UploadSummary struct {
	models.CSVUpload
	RecordCount   int64 `json:"record_count"`
	CustomerCount int64 `json:"customer_count"`
}

// List returns all uploads newest first, each with how many records and
// distinct customers it produced.
func (r *UploadRepository) List(ctx context.Context) ([]UploadSummary, error) {
	var uploads []models.CSVUpload
	if err := r.db.WithContext(ctx).Order("uploaded_at DESC").Find(&uploads).Error; err != nil {
		return nil, err
	}

	summaries := make([]UploadSummary, 0, len(uploads))
	for _, u := range uploads {
		s := UploadSummary{CSVUpload: u}
		if err := r.db.WithContext(ctx).Model(&models.CSVOrderRecord{}).
			Where("upload_id = ?", u.ID).Count(&s.RecordCount).Error; err != nil {
			return nil, err
		}
		if err := r.db.WithContext(ctx).Model(&models.CustomerAnalysis{}).
			Where("upload_id = ?", u.ID).Count(&s.CustomerCount).Error; err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// MarkSuccess records the terminal SUCCESS state with the processed row
// count.
func (r *UploadRepository) MarkSuccess(ctx context.Context, id uuid.UUID, totalRows int) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.CSVUpload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.UploadStatusSuccess,
			"total_rows":   totalRows,
			"processed_at": &now,
		}).Error
}

// MarkFailed records the terminal FAILED state with the cause.
func (r *UploadRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.CSVUpload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.UploadStatusFailed,
			"error_message": cause,
			"processed_at":  &now,
		}).Error
}

// Delete removes an upload with its order records and analysis rows in
// one transaction. The caller recomputes customer aggregates afterwards.
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", id).Delete(&models.CSVOrderRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("upload_id = ?", id).Delete(&models.CustomerAnalysis{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.CSVUpload{}, "id = ?", id).Error
	})
}

// InsertOrderRecord writes one line-item fact, skipping natural-key
// duplicates so a replayed upload stays idempotent. Returns whether the
// row was actually inserted.
func (r *UploadRepository) InsertOrderRecord(ctx context.Context, record *models.CSVOrderRecord) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "upload_id"}, {Name: "order_id"},
			{Name: "customer_phone"}, {Name: "product_name"},
		},
		DoNothing: true,
	}).Create(record)
	return res.RowsAffected > 0, res.Error
}

// UpsertAnalysis writes the per-upload snapshot for one customer,
// replacing an earlier snapshot from a partial run of the same upload.
func (r *UploadRepository) UpsertAnalysis(ctx context.Context, analysis *models.CustomerAnalysis) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "upload_id"}, {Name: "customer_phone"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_name", "location", "total_orders", "customer_type",
			"products_bought", "order_ids", "locations",
			"first_order_date", "last_order_date", "total_spent", "updated_at",
		}),
	}).Create(analysis).Error
}

// DistinctPhonesForUpload lists every customer phone an upload touched.
func (r *UploadRepository) DistinctPhonesForUpload(ctx context.Context, id uuid.UUID) ([]string, error) {
	var phones []string
	err := r.db.WithContext(ctx).Model(&models.CSVOrderRecord{}).
		Where("upload_id = ?", id).
		Distinct("customer_phone").
		Pluck("customer_phone", &phones).Error
	return phones, err
}

// RemainingRecordsForPhone returns every surviving order record for a
// phone across all uploads, oldest order first. Used to rebuild the
// customer aggregate after an upload deletion.
func (r *UploadRepository) RemainingRecordsForPhone(ctx context.Context, phone string) ([]models.CSVOrderRecord, error) {
	var records []models.CSVOrderRecord
	err := r.db.WithContext(ctx).
		Where("customer_phone = ?", phone).
		Order("order_date ASC, created_at ASC").
		Find(&records).Error
	return records, err
}

// RecordsForUpload returns an upload's raw rows, for the detail view.
func (r *UploadRepository) RecordsForUpload(ctx context.Context, id uuid.UUID) ([]models.CSVOrderRecord, error) {
	var records []models.CSVOrderRecord
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", id).
		Order("order_date ASC, created_at ASC").
		Find(&records).Error
	return records, err
}

// AnalysisForUpload returns the per-upload customer snapshots.
func (r *UploadRepository) AnalysisForUpload(ctx context.Context, id uuid.UUID) ([]models.CustomerAnalysis, error) {
	var rows []models.CustomerAnalysis
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", id).
		Order("total_spent DESC").
		Find(&rows).Error
	return rows, err
}
