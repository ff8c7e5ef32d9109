package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/models"
)

// CustomerRepository persists the cross-upload customer aggregates
// keyed by normalized phone.
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new CustomerRepository.
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetByPhone loads one customer aggregate.
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// Save upserts the full aggregate row.
func (r *CustomerRepository) Save(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Save(customer).Error
}

// Delete removes a customer aggregate once no order records remain for
// its phone.
func (r *CustomerRepository) Delete(ctx context.Context, phone string) error {
	return r.db.WithContext(ctx).Where("phone = ?", phone).Delete(&models.Customer{}).Error
}

// CustomerFilter narrows List.
type CustomerFilter struct {
	Search       string // matches name or phone, case-insensitive
	CustomerType string // NEW or REPEAT, empty for all
	City         string
	Limit        int
	Offset       int
}

func (f CustomerFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR phone LIKE ?", like, like)
	}
	switch f.CustomerType {
	case models.CustomerTypeRepeat:
		q = q.Where("is_repeat_customer = ?", true)
	case models.CustomerTypeNew:
		q = q.Where("is_repeat_customer = ?", false)
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	return q
}

// List pages through customer aggregates ordered by lifetime spend.
func (r *CustomerRepository) List(ctx context.Context, filter CustomerFilter) ([]models.Customer, int64, error) {
	base := filter.apply(r.db.WithContext(ctx).Model(&models.Customer{}))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var customers []models.Customer
	err := base.Order("total_spent DESC").Limit(limit).Offset(filter.Offset).Find(&customers).Error
	return customers, total, err
}

// GlobalStats is the dashboard-level customer rollup.
type GlobalStats struct {
	TotalCustomers  int64   `json:"totalCustomers"`
	RepeatCustomers int64   `json:"repeatCustomers"`
	NewCustomers    int64   `json:"newCustomers"`
	TotalOrders     int64   `json:"totalOrders"`
	TotalRevenue    float64 `json:"totalRevenue"`
	RepeatRate      float64 `json:"repeatRate"`
}

// Stats aggregates the full customer table.
func (r *CustomerRepository) Stats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	err := r.db.WithContext(ctx).Model(&models.Customer{}).
		Select("COUNT(*) AS total_customers, " +
			"COALESCE(SUM(CASE WHEN is_repeat_customer THEN 1 ELSE 0 END), 0) AS repeat_customers, " +
			"COALESCE(SUM(total_orders), 0) AS total_orders, " +
			"COALESCE(SUM(total_spent), 0) AS total_revenue").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	stats.NewCustomers = stats.TotalCustomers - stats.RepeatCustomers
	if stats.TotalCustomers > 0 {
		stats.RepeatRate = float64(stats.RepeatCustomers) / float64(stats.TotalCustomers) * 100
	}
	return &stats, nil
}
