package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/solver"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/mathutil"
	"github.com/iwvelando/npk-advisor/pkg/optimization"
	"go.uber.org/zap"
)

// Bounds are the per-nutrient agronomic caps in kg/ha.
type Bounds struct {
	Lower optimization.NutrientPlan
	Upper optimization.NutrientPlan
}

// DefaultBounds returns N in [0,250], P in [0,150], K in [0,150].
func DefaultBounds() Bounds {
	return Bounds{
		Upper: optimization.NutrientPlan{
			N: constants.MaxNitrogen,
			P: constants.MaxPhosphorus,
			K: constants.MaxPotassium,
		},
	}
}

// Settings control the objective and both solve attempts.
type Settings struct {
	Z                     float64
	Tolerance             float64
	PrimaryMaxIterations  int
	FallbackMaxIterations int
	Bounds                Bounds
}

// DefaultSettings returns the documented solver and risk settings.
func DefaultSettings() Settings {
	return Settings{
		Z:                     constants.DefaultZScore,
		Tolerance:             constants.DefaultTolerance,
		PrimaryMaxIterations:  constants.DefaultPrimaryIterations,
		FallbackMaxIterations: constants.DefaultFallbackIterations,
		Bounds:                DefaultBounds(),
	}
}

// Optimizer recommends NPK plans under a budget. It holds only immutable
// values and is safe for concurrent use.
type Optimizer struct {
	logger   *zap.Logger
	costs    config.CostParameters
	model    model.ResponseModel
	settings Settings
}

// New constructs an Optimizer. Invalid prices or settings are programming
// errors and are reported here rather than at solve time.
func New(logger *zap.Logger, costs config.CostParameters, m model.ResponseModel, settings Settings) (*Optimizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		return nil, fmt.Errorf("response model cannot be nil")
	}
	if err := costs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost parameters: %w", err)
	}
	if !mathutil.IsFinite(settings.Z) {
		return nil, fmt.Errorf("z score must be finite, got %v", settings.Z)
	}
	if !(settings.Tolerance > 0) {
		return nil, fmt.Errorf("tolerance must be positive, got %v", settings.Tolerance)
	}
	if settings.PrimaryMaxIterations <= 0 || settings.FallbackMaxIterations <= 0 {
		return nil, fmt.Errorf("iteration caps must be positive, got primary=%d fallback=%d",
			settings.PrimaryMaxIterations, settings.FallbackMaxIterations)
	}
	lower, upper := settings.Bounds.Lower.Vector(), settings.Bounds.Upper.Vector()
	for i := range lower {
		if lower[i] < 0 || lower[i] > upper[i] || !mathutil.IsFinite(upper[i]) {
			return nil, fmt.Errorf("invalid bounds %+v", settings.Bounds)
		}
	}

	return &Optimizer{logger: logger, costs: costs, model: m, settings: settings}, nil
}

// NewFromConfig builds an Optimizer with the default response model tuned by
// the configured risk coefficients.
func NewFromConfig(logger *zap.Logger, conf *config.Configuration) (*Optimizer, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	costs, err := conf.CostParameters()
	if err != nil {
		return nil, err
	}
	risk := conf.Model.Risk
	m, err := model.NewQuadratic(model.RiskCoefficients{
		BaseCV:            risk.BaseCV,
		NitrogenCV:        risk.NitrogenCV,
		NitrogenReference: risk.NitrogenReference,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid risk model configuration: %w", err)
	}
	settings := DefaultSettings()
	settings.Z = risk.Z
	settings.Tolerance = conf.Solver.Tolerance
	settings.PrimaryMaxIterations = conf.Solver.PrimaryMaxIterations
	settings.FallbackMaxIterations = conf.Solver.FallbackMaxIterations
	return New(logger, costs, m, settings)
}

// Costs returns the prices the optimizer trades off.
func (o *Optimizer) Costs() config.CostParameters {
	return o.costs
}

// attempt is the outcome of a single solver run.
type attempt struct {
	x          []float64
	success    bool
	message    string
	iterations int
}

// Optimize returns the plan maximizing the 5th percentile profit within the
// budget. Solver non-convergence is reported through the result status; the
// error is reserved for defects such as a model producing non-finite values.
// Budget positivity is the caller's responsibility.
func (o *Optimizer) Optimize(ctx context.Context, budget float64, features model.Features) (optimization.Result, error) {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return optimization.Result{}, fmt.Errorf("budget must be finite, got %v", budget)
	}

	o.logger.Info("optimizer starting",
		zap.String("op", "optimizer.Optimize"),
		zap.Float64("budget", budget),
		zap.Int("features", len(features)),
		zap.Stringer("costs", o.costs),
	)

	objective := o.objective(features)
	guess := o.InitialGuess(budget)
	o.logger.Debug("optimizer initial guess",
		zap.String("op", "optimizer.Optimize"),
		zap.Float64s("guess", guess),
	)

	primary, err := o.attempt(ctx, objective, budget, guess, o.settings.PrimaryMaxIterations)
	if err != nil {
		return optimization.Result{}, err
	}
	if primary.success {
		result, err := o.finish(primary, budget, features, optimization.StatusSuccess, primary.message)
		if err != nil {
			return optimization.Result{}, err
		}
		o.logger.Info("optimizer succeeded",
			zap.String("op", "optimizer.Optimize"),
			zap.Float64("n", result.Plan.N),
			zap.Float64("p", result.Plan.P),
			zap.Float64("k", result.Plan.K),
			zap.Int("iterations", result.Iterations),
		)
		return result, nil
	}

	o.logger.Warn("optimizer primary solve failed, retrying from origin",
		zap.String("op", "optimizer.Optimize"),
		zap.String("message", primary.message),
	)

	fallback, err := o.attempt(ctx, objective, budget, []float64{0, 0, 0}, o.settings.FallbackMaxIterations)
	if err != nil {
		return optimization.Result{}, err
	}
	if fallback.success {
		fallback.iterations += primary.iterations
		result, err := o.finish(fallback, budget, features, optimization.StatusFallbackSuccess,
			"Fallback success: "+fallback.message)
		if err != nil {
			return optimization.Result{}, err
		}
		o.logger.Info("optimizer fallback succeeded",
			zap.String("op", "optimizer.Optimize"),
			zap.Float64("n", result.Plan.N),
			zap.Float64("p", result.Plan.P),
			zap.Float64("k", result.Plan.K),
		)
		return result, nil
	}

	message := fmt.Sprintf("Failed: %s; Fallback failed: %s", primary.message, fallback.message)
	o.logger.Error("optimizer fallback failed",
		zap.String("op", "optimizer.Optimize"),
		zap.String("message", message),
	)
	return optimization.Result{
		Budget:     budget,
		Status:     optimization.StatusFailed,
		Message:    message,
		Iterations: primary.iterations + fallback.iterations,
	}, nil
}

func (o *Optimizer) attempt(ctx context.Context, objective func([]float64) float64, budget float64, start []float64, maxIterations int) (attempt, error) {
	prob := solver.Problem{
		Func:  objective,
		Lower: o.settings.Bounds.Lower.Vector(),
		Upper: o.settings.Bounds.Upper.Vector(),
		Constraint: solver.LinearInequality{
			Coefficients: o.costs.Coefficients(),
			Min:          0,
			Max:          budget,
		},
	}
	res, err := solver.Minimize(ctx, prob, start, solver.Settings{
		Tolerance:     o.settings.Tolerance,
		MaxIterations: maxIterations,
	})
	if err != nil {
		if errors.Is(err, solver.ErrNonFinite) {
			return attempt{}, fmt.Errorf("response model produced a non-finite objective: %w", err)
		}
		return attempt{}, fmt.Errorf("optimizer problem setup failed: %w", err)
	}
	return attempt{x: res.X, success: res.Success, message: res.Message, iterations: res.Iterations}, nil
}

// finish clamps solver noise and reports cost and statistics at the optimum.
// Only the plan is rounded, without leaving the budget.
func (o *Optimizer) finish(a attempt, budget float64, features model.Features, status optimization.Status, message string) (optimization.Result, error) {
	optimum := optimization.NutrientPlan{
		N: mathutil.NonNegative(a.x[0]),
		P: mathutil.NonNegative(a.x[1]),
		K: mathutil.NonNegative(a.x[2]),
	}
	eval := o.Evaluate(optimum, features)
	if !mathutil.IsFinite(eval.YieldMean) || !mathutil.IsFinite(eval.YieldStdDev) {
		return optimization.Result{}, fmt.Errorf("response model produced non-finite statistics at %+v", optimum)
	}

	plan := optimization.NutrientPlan{
		N: mathutil.Round(optimum.N),
		P: mathutil.Round(optimum.P),
		K: mathutil.Round(optimum.K),
	}
	if o.costs.PlanCost(plan) > budget+constants.BudgetTolerance {
		plan = optimization.NutrientPlan{
			N: mathutil.RoundDown(optimum.N),
			P: mathutil.RoundDown(optimum.P),
			K: mathutil.RoundDown(optimum.K),
		}
	}

	cost := mathutil.Round(eval.Cost)
	if cost > budget+constants.BudgetTolerance {
		cost = mathutil.RoundDown(eval.Cost)
	}

	return optimization.Result{
		Plan:        plan,
		YieldMean:   mathutil.Round(mathutil.NonNegative(eval.YieldMean)),
		YieldStdDev: mathutil.Round(mathutil.NonNegative(eval.YieldStdDev)),
		Yield5th:    mathutil.Round(eval.Yield5th),
		Profit5th:   mathutil.Round(eval.Profit5th),
		Cost:        cost,
		Budget:      budget,
		Status:      status,
		Message:     message,
		Iterations:  a.iterations,
	}, nil
}

// InitialGuess allocates 40/30/30 percent of the budget to N/P/K, clamps each
// component into its bounds and shrinks the point inside the budget if the
// floors pushed it over.
func (o *Optimizer) InitialGuess(budget float64) []float64 {
	shares := []float64{constants.InitialShareN, constants.InitialShareP, constants.InitialShareK}
	coeffs := o.costs.Coefficients()
	upper := o.settings.Bounds.Upper.Vector()

	guess := make([]float64, len(shares))
	for i, share := range shares {
		var amount float64
		if coeffs[i] > 0 {
			amount = budget * share / coeffs[i]
		}
		guess[i] = mathutil.Clamp(amount, constants.InitialFloor, upper[i])
	}

	cost := o.costs.PlanCost(optimization.PlanFromVector(guess))
	if cost > budget {
		scale := budget / cost * constants.InitialShrink
		for i := range guess {
			guess[i] *= scale
		}
	}
	return guess
}
