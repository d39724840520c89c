// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/npk-advisor/pkg/constants"
)

// Round rounds a value to two decimals, the precision of every reported quantity.
func Round(val float64) float64 {
	return math.Round(val*constants.DecimalPrecision) / constants.DecimalPrecision
}

// RoundDown truncates a value toward negative infinity at two decimals.
func RoundDown(val float64) float64 {
	return math.Floor(val*constants.DecimalPrecision) / constants.DecimalPrecision
}

// Clamp limits val to [lo, hi].
func Clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// NonNegative replaces negative values (solver noise) with zero.
func NonNegative(val float64) float64 {
	if val < 0 {
		return 0
	}
	return val
}

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}
