package optimizer

import (
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/pkg/optimization"
)

// Evaluation breaks down the safety-first objective at one plan.
type Evaluation struct {
	Cost        float64
	YieldMean   float64
	YieldStdDev float64
	Yield5th    float64
	Profit5th   float64
}

// Evaluate computes cost, yield statistics and the lower-tail profit of plan.
// The lower tail is mean - z*sd, the one-sided Gaussian bound.
func (o *Optimizer) Evaluate(plan optimization.NutrientPlan, features model.Features) Evaluation {
	cost := o.costs.PlanCost(plan)
	mean := o.model.EstimateYield(plan.N, plan.P, plan.K, features)
	var sd float64
	if mean > 0 {
		sd = o.model.EstimateStdDev(mean, plan.N)
	} else {
		mean = 0
	}
	yield5th := mean - o.settings.Z*sd
	return Evaluation{
		Cost:        cost,
		YieldMean:   mean,
		YieldStdDev: sd,
		Yield5th:    yield5th,
		Profit5th:   yield5th*o.costs.CropPrice() - cost,
	}
}

// objective is the quantity minimized by the solver: the negated 5th
// percentile profit.
func (o *Optimizer) objective(features model.Features) func([]float64) float64 {
	return func(x []float64) float64 {
		return -o.Evaluate(optimization.PlanFromVector(x), features).Profit5th
	}
}
