package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/mathutil"
	"github.com/iwvelando/npk-advisor/pkg/optimization"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"
)

const (
	keyCropPrice = "economics.cropPrice"
	keyCostN     = "economics.costN"
	keyCostP     = "economics.costP"
	keyCostK     = "economics.costK"
)

var economicsEnv = map[string]string{
	keyCropPrice: constants.EnvCropPrice,
	keyCostN:     constants.EnvCostN,
	keyCostP:     constants.EnvCostP,
	keyCostK:     constants.EnvCostK,
}

// resolveEconomics reads each price as text so that unset, unparsable and
// non-positive values can all fall back to their defaults.
func resolveEconomics(v *viper.Viper) (EconomicsConfig, []string) {
	var warnings []string
	get := func(key string, def float64) float64 {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			return def
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || !mathutil.IsFinite(value) || value <= 0 {
			warnings = append(warnings, fmt.Sprintf("%s (%s) invalid (%q), using default: %v",
				key, economicsEnv[key], raw, def))
			return def
		}
		return value
	}

	return EconomicsConfig{
		CropPrice: get(keyCropPrice, constants.DefaultCropPricePerKg),
		CostN:     get(keyCostN, constants.DefaultCostPerKgN),
		CostP:     get(keyCostP, constants.DefaultCostPerKgP),
		CostK:     get(keyCostK, constants.DefaultCostPerKgK),
	}, warnings
}

// CostParameters are the immutable prices used by a single optimizer. Build
// them once at startup and pass them explicitly.
type CostParameters struct {
	cropPrice float64
	costN     float64
	costP     float64
	costK     float64
}

// NewCostParameters validates and returns cost parameters. Zero costs are
// accepted; NaN, infinite and negative values are not.
func NewCostParameters(cropPrice, costN, costP, costK float64) (CostParameters, error) {
	c := CostParameters{cropPrice: cropPrice, costN: costN, costP: costP, costK: costK}
	if err := c.Validate(); err != nil {
		return CostParameters{}, err
	}
	return c, nil
}

// DefaultCostParameters returns the built-in prices.
func DefaultCostParameters() CostParameters {
	return CostParameters{
		cropPrice: constants.DefaultCropPricePerKg,
		costN:     constants.DefaultCostPerKgN,
		costP:     constants.DefaultCostPerKgP,
		costK:     constants.DefaultCostPerKgK,
	}
}

// Validate returns an error when any price is not a finite, non-negative number.
func (c CostParameters) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"crop price", c.cropPrice},
		{"cost per kg N", c.costN},
		{"cost per kg P", c.costP},
		{"cost per kg K", c.costK},
	}
	for _, item := range named {
		if !mathutil.IsFinite(item.value) {
			return fmt.Errorf("%s must be finite, got %v", item.name, item.value)
		}
		if item.value < 0 {
			return fmt.Errorf("%s must not be negative, got %v", item.name, item.value)
		}
	}
	return nil
}

// CropPrice is the sale price per kg of crop.
func (c CostParameters) CropPrice() float64 { return c.cropPrice }

// CostN is the price per kg of nitrogen.
func (c CostParameters) CostN() float64 { return c.costN }

// CostP is the price per kg of phosphorus.
func (c CostParameters) CostP() float64 { return c.costP }

// CostK is the price per kg of potassium.
func (c CostParameters) CostK() float64 { return c.costK }

// Coefficients returns the unit costs as an (N, P, K) slice.
func (c CostParameters) Coefficients() []float64 {
	return []float64{c.costN, c.costP, c.costK}
}

// PlanCost is the price of applying plan.
func (c CostParameters) PlanCost(plan optimization.NutrientPlan) float64 {
	return floats.Dot([]float64{plan.N, plan.P, plan.K}, c.Coefficients())
}

func (c CostParameters) String() string {
	return fmt.Sprintf("price=%.2f costN=%.2f costP=%.2f costK=%.2f", c.cropPrice, c.costN, c.costP, c.costK)
}

// CostParameters builds the immutable prices from the resolved configuration.
func (c *Configuration) CostParameters() (CostParameters, error) {
	e := c.Economics
	params, err := NewCostParameters(e.CropPrice, e.CostN, e.CostP, e.CostK)
	if err != nil {
		return CostParameters{}, fmt.Errorf("invalid economics configuration: %w", err)
	}
	return params, nil
}
