package models

import "math"

// ToMinorUnits converts cedis to pesewas. Amounts are compared and split in
// pesewas so a charge never carries a fraction of the smallest coin.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}

// RoundAmount drops anything below one pesewa.
func RoundAmount(amount float64) float64 {
	return FromMinorUnits(ToMinorUnits(amount))
}
