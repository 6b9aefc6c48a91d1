package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingFee(t *testing.T) {
	tests := []struct {
		country string
		grams   int
		want    float64
	}{
		{"LB", 1000, 7},     // 5 + 1*2
		{"LB", 500, 6},      // 5 + 0.5*2
		{"FR", 2000, 35},    // 15 + 2*10
		{"AE", 1500, 38},    // 20 + 1.5*12
		{"SA", 1000, 40},    // 25 + 1*15
		{"LB", 0, 5},        // base fee only
	}
	for _, tt := range tests {
		fee, err := ShippingFee(tt.country, tt.grams)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, fee, 1e-9, "country %s grams %d", tt.country, tt.grams)
	}
}

func TestShippingFeeUnknownCountry(t *testing.T) {
	_, err := ShippingFee("DE", 1000)
	assert.Error(t, err)
}
