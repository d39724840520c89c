// Package model defines the yield response and yield risk models consumed by
// the optimizer, along with the per-field covariates they read.
package model

import (
	"fmt"

	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/mathutil"
)

// Recognized feature keys.
const (
	FeatureSoilN         = "soil_n"
	FeatureSoilP         = "soil_p"
	FeatureSoilK         = "soil_k"
	FeaturePH            = "ph"
	FeatureTotalRainfall = "total_rainfall"
	FeatureGDD           = "gdd"
	FeatureMeanTemp      = "mean_temp"
)

// Defaults applied when a feature is absent.
const (
	DefaultSoilN         = 25.0
	DefaultTotalRainfall = 500.0
	DefaultGDD           = 1500.0
)

// Features maps named covariates of a field to their values.
type Features map[string]float64

// Value returns the named feature, or def when it is absent.
func (f Features) Value(key string, def float64) float64 {
	if f == nil {
		return def
	}
	if v, ok := f[key]; ok {
		return v
	}
	return def
}

// Clone returns an independent copy.
func (f Features) Clone() Features {
	out := make(Features, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ResponseModel estimates the yield of an NPK application and its spread.
// Implementations must be pure and safe for concurrent use.
type ResponseModel interface {
	// EstimateYield returns the expected yield in kg/ha, never negative.
	EstimateYield(n, p, k float64, features Features) float64
	// EstimateStdDev returns the yield standard deviation for a mean yield at nitrogen rate n.
	EstimateStdDev(meanYield, n float64) float64
}

// YieldCoefficients parameterize the yield response surface.
type YieldCoefficients struct {
	Intercept     float64
	SoilN         float64
	TotalRainfall float64
	GDD           float64
	NLinear       float64
	NQuadratic    float64
	PLinear       float64
	KLinear       float64
}

// RiskCoefficients parameterize the yield spread.
type RiskCoefficients struct {
	BaseCV            float64
	NitrogenCV        float64
	NitrogenReference float64
}

// Quadratic is the default response model: a base potential driven by soil
// nitrogen and weather, a diminishing-returns nitrogen term and linear
// phosphorus and potassium terms.
type Quadratic struct {
	Yield YieldCoefficients
	Risk  RiskCoefficients
}

// DefaultYieldCoefficients returns the documented response surface.
func DefaultYieldCoefficients() YieldCoefficients {
	return YieldCoefficients{
		Intercept:     100,
		SoilN:         0.2,
		TotalRainfall: 0.05,
		GDD:           0.01,
		NLinear:       1.5,
		NQuadratic:    0.005,
		PLinear:       0.8,
		KLinear:       0.5,
	}
}

// DefaultRiskCoefficients returns the documented risk parameters.
func DefaultRiskCoefficients() RiskCoefficients {
	return RiskCoefficients{
		BaseCV:            constants.DefaultBaseCV,
		NitrogenCV:        constants.DefaultNitrogenCV,
		NitrogenReference: constants.DefaultNitrogenReference,
	}
}

// Default returns the documented model.
func Default() *Quadratic {
	return &Quadratic{Yield: DefaultYieldCoefficients(), Risk: DefaultRiskCoefficients()}
}

// NewQuadratic validates and returns a model with the given risk coefficients
// and the documented yield surface.
func NewQuadratic(risk RiskCoefficients) (*Quadratic, error) {
	if !mathutil.IsFinite(risk.BaseCV) || risk.BaseCV < 0 {
		return nil, fmt.Errorf("base coefficient of variation must be a non-negative number, got %v", risk.BaseCV)
	}
	if !mathutil.IsFinite(risk.NitrogenCV) || risk.NitrogenCV < 0 {
		return nil, fmt.Errorf("nitrogen coefficient of variation must be a non-negative number, got %v", risk.NitrogenCV)
	}
	if !mathutil.IsFinite(risk.NitrogenReference) || risk.NitrogenReference <= 0 {
		return nil, fmt.Errorf("nitrogen reference rate must be positive, got %v", risk.NitrogenReference)
	}
	return &Quadratic{Yield: DefaultYieldCoefficients(), Risk: risk}, nil
}

// BasePotential is the yield with no fertilizer applied, before flooring.
func (q *Quadratic) BasePotential(features Features) float64 {
	c := q.Yield
	return c.Intercept +
		c.SoilN*features.Value(FeatureSoilN, DefaultSoilN) +
		c.TotalRainfall*features.Value(FeatureTotalRainfall, DefaultTotalRainfall) +
		c.GDD*features.Value(FeatureGDD, DefaultGDD)
}

// EstimateYield implements ResponseModel.
func (q *Quadratic) EstimateYield(n, p, k float64, features Features) float64 {
	c := q.Yield
	nTerm := c.NLinear*n - c.NQuadratic*n*n
	total := q.BasePotential(features) + nTerm + c.PLinear*p + c.KLinear*k
	return mathutil.NonNegative(total)
}

// EstimateStdDev implements ResponseModel. The spread is a flat coefficient
// of variation plus a term growing with the nitrogen rate.
func (q *Quadratic) EstimateStdDev(meanYield, n float64) float64 {
	if meanYield <= 0 {
		return 0
	}
	r := q.Risk
	return meanYield * (r.BaseCV + (n/r.NitrogenReference)*r.NitrogenCV)
}
