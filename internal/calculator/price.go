package calculator

import (
	"errors"
	"math"
)

// MarginFactor is the minimum ratio of sale price to purchase price.
const MarginFactor = 1.15

const (
	centsHigh = 0.99
	centsLow  = 0.49
)

// MarginFloor returns the lowest sale price allowed for the given purchase price.
func MarginFloor(purchasePrice float64) float64 {
	return purchasePrice * MarginFactor
}

// LowestPrice is the smallest price SmartPrice can return for purchasePrice.
// Rounding to a multiple of ten minus one cent may land below MarginFloor.
func LowestPrice(purchasePrice float64) float64 {
	return math.Floor(MarginFloor(purchasePrice)) - 0.01
}

// SmartPrice applies discount to basePrice, clamps the result to the margin
// floor and rounds it to a customer friendly price such as 9.49, 25.99 or 69.99.
// A negative discount raises the price.
//
// A whole part of exactly 20 takes the .49 branch of the cents choice; the
// multiple-of-ten rule then overrides it to 19.99. Keep both branches as they
// are, campaign price history depends on them.
func SmartPrice(basePrice, purchasePrice, discount float64) float64 {
	discounted := basePrice * (1 - discount)
	if floor := MarginFloor(purchasePrice); discounted < floor {
		discounted = floor
	}

	whole := math.Floor(discounted)
	frac := discounted - whole

	cents := centsLow
	if whole > 20 || (whole < 20 && frac > 0.5) {
		cents = centsHigh
	}

	if math.Mod(whole, 10) == 0 {
		return whole - 0.01
	}
	return whole + cents
}

// ValidateInputs rejects prices SmartPrice is not defined for.
func ValidateInputs(basePrice, purchasePrice float64) error {
	for _, v := range []float64{basePrice, purchasePrice} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("price must be finite")
		}
		if v < 0 {
			return errors.New("price must not be negative")
		}
	}
	return nil
}
