// Package format renders amounts for human-readable output.
package format

import (
	"fmt"
	"math"
	"strings"
)

// CurrencySymbol prefixes formatted amounts.
const CurrencySymbol = "₹"

// Currency returns a rupee string with Indian digit grouping (e.g., "-₹12,34,567.89").
func Currency(amount float64) string {
	formatted := formatPositiveCurrency(math.Abs(amount))
	if amount < 0 && formatted != "0.00" {
		return "-" + CurrencySymbol + formatted
	}
	return CurrencySymbol + formatted
}

// Rate returns an application rate such as "47.40 kg/ha".
func Rate(kgPerHa float64) string {
	return fmt.Sprintf("%.2f kg/ha", kgPerHa)
}

// formatPositiveCurrency groups the last three integer digits, then pairs,
// as in lakh and crore notation.
func formatPositiveCurrency(value float64) string {
	formatted := fmt.Sprintf("%.2f", value)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var builder strings.Builder
		for i, digit := range head {
			if i > 0 && (len(head)-i)%2 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String() + "," + tail
	}

	return intPart + "." + decPart
}
