package csvparse

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseShopifyExport(t *testing.T) {
	csv := "Name,Billing Name,Billing Phone,Lineitem Name,Total\n" +
		"#1001,Asha Patel,+91 98765 43210,Herbal Tea,499\n" +
		"#1001,Asha Patel,+91 98765 43210,Green Tea,299\n" +
		"#1002,Ravi Kumar,08123456789,Herbal Tea,499\n"

	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "#1001", records[0].OrderID)
	assert.Equal(t, "9876543210", records[0].Phone)
	assert.Equal(t, "Asha Patel", records[0].Name)
	assert.Equal(t, "Herbal Tea", records[0].Product)
	assert.Equal(t, 499.0, records[0].Amount)

	// Second line item of the same order is not a new order.
	assert.True(t, records[0].NewOrder)
	assert.False(t, records[1].NewOrder)
	assert.True(t, records[2].NewOrder)

	assert.Equal(t, "8123456789", records[2].Phone)
}

func TestParseStripsBOMAndCRLF(t *testing.T) {
	csv := "\ufeffName,Phone\r\n#1,9876543210\r\n"
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "#1", records[0].OrderID)
}

func TestParseQuotedCommas(t *testing.T) {
	csv := `Order ID,Phone,Lineitem Name,Shipping City
#10,9876543210,"Tea, Premium Blend","Mumbai"
`
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Tea, Premium Blend", records[0].Product)
	assert.Equal(t, "Mumbai", records[0].City)
}

func TestParseHeaderAliases(t *testing.T) {
	// shipping_phone is a lower-priority alias but still resolves.
	csv := "Order Number,Shipping Phone\n55,9876543210\n"
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "55", records[0].OrderID)
	assert.Equal(t, "9876543210", records[0].Phone)
}

func TestParseMissingPhoneColumn(t *testing.T) {
	csv := "Name,Total\n#1,100\n"
	_, err := Parse(csv, zap.NewNop())
	var missing *MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, missing.Error(), "Billing Phone")
}

func TestParseMissingOrderIDColumn(t *testing.T) {
	csv := "Billing Phone,Total\n9876543210,100\n"
	_, err := Parse(csv, zap.NewNop())
	var missing *MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, missing.Error(), "Order ID")
}

func TestParseSkipsBadRowsButContinues(t *testing.T) {
	csv := "Name,Billing Phone\n" +
		"#1,no-digits-here\n" + // unusable phone, skipped
		",9876543210\n" + // empty order id, skipped
		"#2,9876543210\n"
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "#2", records[0].OrderID)
}

func TestParseAllRowsInvalid(t *testing.T) {
	csv := "Name,Billing Phone\n#1,nope\n"
	_, err := Parse(csv, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestParseDefaultsAndDates(t *testing.T) {
	csv := "Order ID,Billing Phone,Created At\n#1,9876543210,2025-03-10 14:30:00 +0530\n"
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "Unknown", records[0].Name)
	assert.Equal(t, "Product", records[0].Product)
	assert.Equal(t, 2025, records[0].Date.Year())
	assert.Equal(t, time.March, records[0].Date.Month())
}

func TestParseAmountStripsCurrency(t *testing.T) {
	csv := "Order ID,Billing Phone,Total\n#1,9876543210,\"₹1,299\"\n"
	records, err := Parse(csv, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1299.0, records[0].Amount)
}
