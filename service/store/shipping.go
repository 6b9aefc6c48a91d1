package store

import "fmt"

type shippingRate struct {
	BaseFee  float64
	PerKgFee float64
}

// Rates are keyed by destination country; fees depend on distance and order
// weight.
var shippingRates = map[string]shippingRate{
	"LB": {BaseFee: 5, PerKgFee: 2},
	"FR": {BaseFee: 15, PerKgFee: 10},
	"AE": {BaseFee: 20, PerKgFee: 12},
	"SA": {BaseFee: 25, PerKgFee: 15},
}

// ShippingFee computes the delivery fee for an order weight in grams.
func ShippingFee(country string, totalWeightGrams int) (float64, error) {
	rate, ok := shippingRates[country]
	if !ok {
		return 0, fmt.Errorf("unsupported shipping destination: %s", country)
	}
	kg := float64(totalWeightGrams) / 1000
	return rate.BaseFee + kg*rate.PerKgFee, nil
}
