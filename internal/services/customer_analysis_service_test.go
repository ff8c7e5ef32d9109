package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/models"
)

const exportCSV = `Name,Billing Phone,Lineitem name,Billing City,Created at,Total
#1001,+91 98765 43210,Herbal Tea,Mumbai,2025-01-10,499
#1001,+91 98765 43210,Green Tea,Mumbai,2025-01-10,
#1002,+91 98765 43210,Herbal Tea,Pune,2025-02-15,499
#1003,9123456780,Green Tea,Delhi,2025-02-20,299
`

func processUpload(t *testing.T, env *testEnv, content string) *models.CSVUpload {
	t.Helper()
	ctx := context.Background()
	upload, err := env.analysis.CreateUpload(ctx, "orders_export.csv")
	require.NoError(t, err)
	require.NoError(t, env.analysis.ProcessUpload(ctx, upload.ID, content))
	reloaded, err := env.uploadRepo.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	return reloaded
}

func TestProcessUploadBuildsCustomers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload := processUpload(t, env, exportCSV)
	assert.Equal(t, models.UploadStatusSuccess, upload.Status)
	assert.Equal(t, 4, upload.TotalRows)

	// Two orders for the first phone: line items of #1001 collapse into
	// one order, #1002 is the second.
	customer, err := env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.TotalOrders)
	assert.True(t, customer.IsRepeatCustomer)
	assert.Equal(t, 998.0, customer.TotalSpent)
	assert.Equal(t, "Pune", customer.City, "latest record wins the city")
	assert.ElementsMatch(t, []string{"Herbal Tea", "Green Tea"}, customer.Products())
	assert.ElementsMatch(t, []string{"Mumbai", "Pune"}, customer.Cities())
	assert.Equal(t, "Herbal Tea", customer.LastProductOrdered)

	single, err := env.customerRepo.GetByPhone(ctx, "9123456780")
	require.NoError(t, err)
	assert.Equal(t, 1, single.TotalOrders)
	assert.False(t, single.IsRepeatCustomer)

	stats, err := env.analysis.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalCustomers)
	assert.EqualValues(t, 1, stats.RepeatCustomers)
	assert.EqualValues(t, 3, stats.TotalOrders)
}

func TestProcessUploadReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload := processUpload(t, env, exportCSV)
	// Replay of the exact same batch, e.g. a retried worker.
	require.NoError(t, env.analysis.ProcessUpload(ctx, upload.ID, exportCSV))

	customer, err := env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.TotalOrders)
	assert.Equal(t, 998.0, customer.TotalSpent)

	var recordCount int64
	require.NoError(t, env.db.Model(&models.CSVOrderRecord{}).Count(&recordCount).Error)
	assert.EqualValues(t, 4, recordCount, "replayed lines hit the natural key and are skipped")
}

func TestDuplicateFileAcrossUploadsDoesNotInflateCustomers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	processUpload(t, env, exportCSV)
	processUpload(t, env, exportCSV)

	// Distinct order-id counting collapses the duplicated evidence.
	customer, err := env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.TotalOrders)
	assert.Equal(t, 998.0, customer.TotalSpent)

	// And subscription plans are not renewed by the duplicate.
	link, err := env.subRepo.GetLink(ctx, "9876543210", mustSubID(t, env, "Herbal Tea"))
	require.NoError(t, err)
	assert.Equal(t, 2, link.TotalOrdersOnPlan)
}

func TestDeleteUploadRecomputesExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := processUpload(t, env, exportCSV)

	second := processUpload(t, env, `Name,Billing Phone,Lineitem name,Billing City,Created at,Total
#2001,+91 98765 43210,Tulsi Tea,Jaipur,2025-03-05,799
`)

	customer, err := env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 3, customer.TotalOrders)
	assert.Equal(t, "Jaipur", customer.City)

	// Dropping the newer upload restores the earlier state exactly.
	require.NoError(t, env.analysis.DeleteUpload(ctx, second.ID))

	customer, err = env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.TotalOrders)
	assert.Equal(t, 998.0, customer.TotalSpent)
	assert.Equal(t, "Pune", customer.City)
	assert.NotContains(t, customer.Products(), "Tulsi Tea")

	// Dropping the last upload removes the customers entirely.
	require.NoError(t, env.analysis.DeleteUpload(ctx, first.ID))
	_, err = env.customerRepo.GetByPhone(ctx, "9876543210")
	assert.Error(t, err)

	stats, err := env.analysis.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.TotalCustomers)
}

func TestDeleteUploadUnknownID(t *testing.T) {
	env := newTestEnv(t)
	upload := processUpload(t, env, exportCSV)
	ctx := context.Background()

	require.NoError(t, env.analysis.DeleteUpload(ctx, upload.ID))
	err := env.analysis.DeleteUpload(ctx, upload.ID)
	assert.ErrorIs(t, err, attribution.ErrUploadNotFound)
}

func TestProcessUploadFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.analysis.CreateUpload(ctx, "broken.csv")
	require.NoError(t, err)

	err = env.analysis.ProcessUpload(ctx, upload.ID, "Name,Total\n#1,499\n")
	require.Error(t, err)

	reloaded, err := env.uploadRepo.GetByID(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMessage, "Billing Phone")
}

func TestCustomerNameKeepsLastRealValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The newer row has no billing name, which the parser fills with the
	// "Unknown" placeholder; it must not displace the earlier real name.
	processUpload(t, env, `Name,Billing Name,Billing Phone,Lineitem name,Created at,Total
#3001,Asha Patel,9876543210,Herbal Tea,2025-01-10,499
#3002,,9876543210,Green Tea,2025-02-10,299
`)

	customer, err := env.customerRepo.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "Asha Patel", customer.Name)
	assert.Equal(t, "Green Tea", customer.LastProductOrdered, "other latest-record fields still win")
}

func TestUploadSnapshotPerUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload := processUpload(t, env, exportCSV)

	_, _, analysis, err := env.analysis.UploadDetail(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, analysis, 2)

	byPhone := map[string]models.CustomerAnalysis{}
	for _, row := range analysis {
		byPhone[row.CustomerPhone] = row
	}
	repeat := byPhone["9876543210"]
	assert.Equal(t, 2, repeat.TotalOrders)
	assert.Equal(t, models.CustomerTypeRepeat, repeat.CustomerType)
	assert.ElementsMatch(t, []string{"#1001", "#1002"}, models.DecodeStrings(repeat.OrderIDs))

	fresh := byPhone["9123456780"]
	assert.Equal(t, models.CustomerTypeNew, fresh.CustomerType)
}

func mustSubID(t *testing.T, env *testEnv, product string) uuid.UUID {
	t.Helper()
	sub, err := env.subRepo.GetByProductName(context.Background(), product)
	require.NoError(t, err)
	return sub.ID
}
