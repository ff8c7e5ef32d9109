package services

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/firstbud/attribution-service/internal/csvparse"
	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/events"
	"github.com/firstbud/attribution-service/internal/models"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/utils"
)

// CustomerAnalysisService ingests historical order CSVs and maintains
// the cross-upload customer aggregates derived from them. Customer rows
// are always a pure function of the surviving order records, so ingest
// and upload deletion share one recompute path.
type CustomerAnalysisService struct {
	uploadRepo   *repository.UploadRepository
	customerRepo *repository.CustomerRepository
	subscription *SubscriptionService
	publisher    *events.Publisher
	phoneLocks   *utils.KeyMutex
	logger       *zap.Logger
}

// NewCustomerAnalysisService creates a new CustomerAnalysisService
func NewCustomerAnalysisService(
	uploadRepo *repository.UploadRepository,
	customerRepo *repository.CustomerRepository,
	subscription *SubscriptionService,
	publisher *events.Publisher,
	logger *zap.Logger,
) *CustomerAnalysisService {
	return &CustomerAnalysisService{
		uploadRepo:   uploadRepo,
		customerRepo: customerRepo,
		subscription: subscription,
		publisher:    publisher,
		phoneLocks:   utils.NewKeyMutex(64),
		logger:       logger,
	}
}

// CreateUpload registers a new batch in PROCESSING state.
func (s *CustomerAnalysisService) CreateUpload(ctx context.Context, fileName string) (*models.CSVUpload, error) {
	upload := &models.CSVUpload{FileName: fileName, Status: models.UploadStatusProcessing}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		return nil, err
	}
	return upload, nil
}

// ProcessUpload parses the CSV content and folds it into the order
// records, per-upload snapshots and customer aggregates. The upload ends
// in exactly one terminal status: SUCCESS past this point, FAILED when
// parsing or persistence gives out.
func (s *CustomerAnalysisService) ProcessUpload(ctx context.Context, uploadID uuid.UUID, content string) error {
	upload, err := s.uploadRepo.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attribution.ErrUploadNotFound
		}
		return err
	}

	records, err := csvparse.Parse(content, s.logger)
	if err != nil {
		return s.fail(ctx, upload, err)
	}

	byPhone := make(map[string][]csvparse.Record)
	for _, rec := range records {
		byPhone[rec.Phone] = append(byPhone[rec.Phone], rec)
	}

	for phone, group := range byPhone {
		if err := s.ingestCustomerBatch(ctx, upload.ID, phone, group); err != nil {
			return s.fail(ctx, upload, err)
		}
	}

	if err := s.uploadRepo.MarkSuccess(ctx, upload.ID, len(records)); err != nil {
		return err
	}

	s.logger.Info("upload processed",
		zap.String("upload_id", upload.ID.String()),
		zap.Int("rows", len(records)),
		zap.Int("customers", len(byPhone)),
	)

	_ = s.publisher.PublishUploadCompleted(&events.UploadCompletedEvent{
		UploadID:  upload.ID,
		FileName:  upload.FileName,
		TotalRows: len(records),
	})
	return nil
}

func (s *CustomerAnalysisService) fail(ctx context.Context, upload *models.CSVUpload, cause error) error {
	if err := s.uploadRepo.MarkFailed(ctx, upload.ID, cause.Error()); err != nil {
		s.logger.Error("failed to record upload failure",
			zap.String("upload_id", upload.ID.String()), zap.Error(err))
	}
	_ = s.publisher.PublishUploadFailed(&events.UploadFailedEvent{
		UploadID: upload.ID,
		FileName: upload.FileName,
		Error:    cause.Error(),
	})
	return cause
}

// ingestCustomerBatch writes one phone's slice of an upload under that
// phone's lock: raw records first, then the rebuilt aggregate, then the
// per-upload snapshot and subscription links for the lines that were new.
func (s *CustomerAnalysisService) ingestCustomerBatch(ctx context.Context, uploadID uuid.UUID, phone string, group []csvparse.Record) error {
	unlock := s.phoneLocks.Lock(phone)
	defer unlock()

	// Purchases already evidenced by an earlier upload must not renew a
	// plan again when the same export is uploaded twice.
	existing, err := s.uploadRepo.RemainingRecordsForPhone(ctx, phone)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, rec := range existing {
		known[rec.OrderID+"|"+rec.ProductName] = true
	}

	var inserted []csvparse.Record
	for _, rec := range group {
		row := &models.CSVOrderRecord{
			UploadID:      uploadID,
			OrderID:       rec.OrderID,
			CustomerPhone: rec.Phone,
			ProductName:   rec.Product,
			CustomerName:  rec.Name,
			City:          rec.City,
			OrderDate:     rec.Date,
			OrderAmount:   rec.Amount,
		}
		ok, err := s.uploadRepo.InsertOrderRecord(ctx, row)
		if err != nil {
			return err
		}
		if ok {
			inserted = append(inserted, rec)
		}
	}

	customer, err := s.recomputeCustomerLocked(ctx, phone)
	if err != nil {
		return err
	}

	if err := s.writeSnapshot(ctx, uploadID, phone, group, customer); err != nil {
		return err
	}

	// Only genuinely new purchases feed subscriptions, so replaying the
	// same export never double-renews a plan.
	for _, rec := range inserted {
		if known[rec.OrderID+"|"+rec.Product] {
			continue
		}
		if _, err := s.subscription.LinkPurchase(ctx, phone, rec.Product, rec.Amount, rec.Date); err != nil {
			return err
		}
	}
	return nil
}

// writeSnapshot upserts the per-upload view of one customer.
func (s *CustomerAnalysisService) writeSnapshot(ctx context.Context, uploadID uuid.UUID, phone string, group []csvparse.Record, customer *models.Customer) error {
	orderSeen := map[string]bool{}
	products := map[string]bool{}
	cities := map[string]bool{}
	var orderIDs, productList, cityList []string
	var spent float64
	first, last := group[0].Date, group[0].Date

	for _, rec := range group {
		if !orderSeen[rec.OrderID] {
			orderSeen[rec.OrderID] = true
			orderIDs = append(orderIDs, rec.OrderID)
			spent += rec.Amount
		}
		if rec.Product != "" && !products[rec.Product] {
			products[rec.Product] = true
			productList = append(productList, rec.Product)
		}
		if rec.City != "" && !cities[rec.City] {
			cities[rec.City] = true
			cityList = append(cityList, rec.City)
		}
		if rec.Date.Before(first) {
			first = rec.Date
		}
		if rec.Date.After(last) {
			last = rec.Date
		}
	}

	customerType := models.CustomerTypeNew
	name, location := group[len(group)-1].Name, group[len(group)-1].City
	if customer != nil {
		if customer.IsRepeatCustomer {
			customerType = models.CustomerTypeRepeat
		}
		name, location = customer.Name, customer.City
	}

	return s.uploadRepo.UpsertAnalysis(ctx, &models.CustomerAnalysis{
		UploadID:       uploadID,
		CustomerPhone:  phone,
		CustomerName:   name,
		Location:       location,
		TotalOrders:    len(orderIDs),
		CustomerType:   customerType,
		ProductsBought: models.EncodeStrings(productList),
		OrderIDs:       models.EncodeStrings(orderIDs),
		Locations:      models.EncodeStrings(cityList),
		FirstOrderDate: first,
		LastOrderDate:  last,
		TotalSpent:     spent,
	})
}

// RecomputeCustomer rebuilds one customer aggregate from the surviving
// order records, taking the phone lock.
func (s *CustomerAnalysisService) RecomputeCustomer(ctx context.Context, phone string) (*models.Customer, error) {
	unlock := s.phoneLocks.Lock(phone)
	defer unlock()
	return s.recomputeCustomerLocked(ctx, phone)
}

// recomputeCustomerLocked derives the aggregate as a pure function of
// the stored records. No surviving records deletes the row: a customer
// only exists as long as evidence for them does. The latest record wins
// the city, the last non-placeholder value wins the name; order counting
// is by distinct order id.
func (s *CustomerAnalysisService) recomputeCustomerLocked(ctx context.Context, phone string) (*models.Customer, error) {
	records, err := s.uploadRepo.RemainingRecordsForPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		if err := s.customerRepo.Delete(ctx, phone); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OrderDate.Before(records[j].OrderDate)
	})

	orderSeen := map[string]bool{}
	products := map[string]bool{}
	cities := map[string]bool{}
	var productList, cityList []string
	var spent float64
	var orders int

	for _, rec := range records {
		if !orderSeen[rec.OrderID] {
			orderSeen[rec.OrderID] = true
			orders++
			spent += rec.OrderAmount
		}
		if rec.ProductName != "" && !products[rec.ProductName] {
			products[rec.ProductName] = true
			productList = append(productList, rec.ProductName)
		}
		if rec.City != "" && !cities[rec.City] {
			cities[rec.City] = true
			cityList = append(cityList, rec.City)
		}
	}

	latest := records[len(records)-1]
	firstDate := records[0].OrderDate
	lastDate := latest.OrderDate

	// The latest record wins the name, unless it only carries the
	// "Unknown" placeholder and an earlier record had a real one.
	name := latest.CustomerName
	for i := len(records) - 1; i >= 0; i-- {
		if n := records[i].CustomerName; n != "" && n != "Unknown" {
			name = n
			break
		}
	}

	customer := &models.Customer{
		Phone:              phone,
		Name:               name,
		City:               latest.City,
		TotalOrders:        orders,
		IsRepeatCustomer:   orders >= 2,
		TotalSpent:         spent,
		LastProductOrdered: latest.ProductName,
		FirstOrderDate:     &firstDate,
		LastOrderDate:      &lastDate,
	}
	customer.SetProducts(productList)
	customer.SetCities(cityList)

	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// DeleteUpload removes a batch and restores every touched customer to
// exactly the state the remaining uploads imply, then repairs the
// subscription counters the deleted records had fed.
func (s *CustomerAnalysisService) DeleteUpload(ctx context.Context, uploadID uuid.UUID) error {
	if _, err := s.uploadRepo.GetByID(ctx, uploadID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attribution.ErrUploadNotFound
		}
		return err
	}

	phones, err := s.uploadRepo.DistinctPhonesForUpload(ctx, uploadID)
	if err != nil {
		return err
	}

	if err := s.uploadRepo.Delete(ctx, uploadID); err != nil {
		return err
	}

	for _, phone := range phones {
		if _, err := s.RecomputeCustomer(ctx, phone); err != nil {
			return err
		}
	}

	if err := s.subscription.Rebuild(ctx); err != nil {
		return err
	}

	s.logger.Info("upload deleted",
		zap.String("upload_id", uploadID.String()),
		zap.Int("customers_recomputed", len(phones)),
	)
	return nil
}

// GetCustomer returns one aggregate with its subscription history.
func (s *CustomerAnalysisService) GetCustomer(ctx context.Context, phone string) (*models.Customer, []models.CustomerSubscription, error) {
	customer, err := s.customerRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, attribution.ErrCustomerNotFound
		}
		return nil, nil, err
	}
	links, err := s.subscription.ForCustomer(ctx, phone)
	if err != nil {
		return nil, nil, err
	}
	return customer, links, nil
}

// ListCustomers pages through the aggregates.
func (s *CustomerAnalysisService) ListCustomers(ctx context.Context, filter repository.CustomerFilter) ([]models.Customer, int64, error) {
	return s.customerRepo.List(ctx, filter)
}

// Stats returns the customer dashboard rollup.
func (s *CustomerAnalysisService) Stats(ctx context.Context) (*repository.GlobalStats, error) {
	return s.customerRepo.Stats(ctx)
}

// ListUploads returns the upload history with counts.
func (s *CustomerAnalysisService) ListUploads(ctx context.Context) ([]repository.UploadSummary, error) {
	return s.uploadRepo.List(ctx)
}

// UploadDetail returns one upload with its records and snapshots.
func (s *CustomerAnalysisService) UploadDetail(ctx context.Context, uploadID uuid.UUID) (*models.CSVUpload, []models.CSVOrderRecord, []models.CustomerAnalysis, error) {
	upload, err := s.uploadRepo.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, attribution.ErrUploadNotFound
		}
		return nil, nil, nil, err
	}
	records, err := s.uploadRepo.RecordsForUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, nil, err
	}
	analysis, err := s.uploadRepo.AnalysisForUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, nil, err
	}
	return upload, records, analysis, nil
}
