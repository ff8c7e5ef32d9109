package services

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/events"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/repository"
)

// testDB opens an isolated sqlite database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Shop{},
		&models.Campaign{},
		&models.Coupon{},
		&models.Lead{},
		&models.Order{},
		&models.CSVUpload{},
		&models.CSVOrderRecord{},
		&models.CustomerAnalysis{},
		&models.Customer{},
		&models.Subscription{},
		&models.CustomerSubscription{},
	))
	return db
}

type testEnv struct {
	db             *gorm.DB
	shopRepo       *repository.ShopRepository
	orderRepo      *repository.OrderRepository
	couponRepo     *repository.CouponRepository
	campaignRepo   *repository.CampaignRepository
	leadRepo       *repository.LeadRepository
	uploadRepo     *repository.UploadRepository
	customerRepo   *repository.CustomerRepository
	subRepo        *repository.SubscriptionRepository
	reconciliation *ReconciliationService
	subscriptions  *SubscriptionService
	analysis       *CustomerAnalysisService
}

// newTestEnv wires the full service stack against a fresh database,
// with events disabled.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	logger := zap.NewNop()
	publisher := events.NewPublisher(nil, logger)

	env := &testEnv{
		db:           db,
		shopRepo:     repository.NewShopRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		couponRepo:   repository.NewCouponRepository(db),
		campaignRepo: repository.NewCampaignRepository(db),
		leadRepo:     repository.NewLeadRepository(db),
		uploadRepo:   repository.NewUploadRepository(db),
		customerRepo: repository.NewCustomerRepository(db),
		subRepo:      repository.NewSubscriptionRepository(db),
	}
	env.reconciliation = NewReconciliationService(
		env.orderRepo, env.couponRepo, env.leadRepo, publisher, logger,
	)
	env.subscriptions = NewSubscriptionService(env.subRepo, env.uploadRepo, logger)
	env.analysis = NewCustomerAnalysisService(
		env.uploadRepo, env.customerRepo, env.subscriptions, publisher, logger,
	)
	return env
}
