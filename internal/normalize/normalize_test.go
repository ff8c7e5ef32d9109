package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCouponCodeEquivalence(t *testing.T) {
	inputs := []string{
		"YOGREET10",
		"yogreet10",
		"YoGrEeT10",
		"  yogreet10  ",
		"yogreet-10",
		"YOGREET-10!",
	}
	for _, in := range inputs {
		assert.Equal(t, "YOGREET10", CouponCode(in), "input %q", in)
	}
}

func TestCouponCodeStripsSpecials(t *testing.T) {
	assert.Equal(t, "SAVE20", CouponCode(" save_2.0 !"))
	assert.Equal(t, "", CouponCode(""))
	assert.Equal(t, "", CouponCode("   "))
	assert.Equal(t, "", CouponCode("!!!"))
}

func TestPhoneEquivalence(t *testing.T) {
	forms := []string{
		"+91 98765 43210",
		"09876543210",
		"9876543210",
		"91-98765-43210",
	}
	for _, in := range forms {
		assert.Equal(t, "9876543210", Phone(in), "input %q", in)
	}
}

func TestPhoneEdgeCases(t *testing.T) {
	assert.Equal(t, "", Phone(""))
	assert.Equal(t, "", Phone("abc"))
	// "91" prefix only stripped when more than 10 digits remain overall.
	assert.Equal(t, "9198765432", Phone("9198765432"))
	// Single leading zero dropped, not all of them.
	assert.Equal(t, "0876543210", Phone("00876543210"))
}
