// Package advisor runs the recommendation pipeline: featurize a field,
// optimize the NPK plan under the budget and shape the result for callers.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/npk-advisor/internal/fields"
	"github.com/iwvelando/npk-advisor/internal/metrics"
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/weather"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/mathutil"
	"github.com/iwvelando/npk-advisor/pkg/optimization"
	"github.com/iwvelando/npk-advisor/pkg/validation"
	"go.uber.org/zap"
)

// Optimizer computes a plan for a budget and a set of features.
type Optimizer interface {
	Optimize(ctx context.Context, budget float64, features model.Features) (optimization.Result, error)
}

// Featurizer resolves a field id into model features.
type Featurizer interface {
	Featurize(ctx context.Context, fieldID, crop string) (fields.FeatureSet, error)
}

// Request asks for a recommendation for one field.
type Request struct {
	FieldID string  `json:"field_id" validate:"required"`
	Crop    string  `json:"crop"`
	Budget  float64 `json:"budget" validate:"gt=0"`
}

// Recommendation is the payload returned to API and CLI callers.
type Recommendation struct {
	FieldID         string           `json:"field_id,omitempty"`
	Crop            string           `json:"crop,omitempty"`
	SeasonYear      int              `json:"season_year,omitempty"`
	Budget          float64          `json:"budget"`
	RecommendedN    float64          `json:"recommended_N"`
	RecommendedP    float64          `json:"recommended_P"`
	RecommendedK    float64          `json:"recommended_K"`
	Cost            float64          `json:"cost"`
	YieldMean       float64          `json:"expected_yield_mean"`
	YieldStdDev     float64          `json:"expected_yield_std"`
	Yield5th        float64          `json:"expected_yield_p5"`
	YieldCILow      float64          `json:"expected_yield_95_ci_low"`
	YieldCIHigh     float64          `json:"expected_yield_95_ci_high"`
	Profit5th       float64          `json:"profit_p5"`
	Status          string           `json:"status"`
	Message         string           `json:"message"`
	Iterations      int              `json:"iterations"`
	WeatherSummary  *weather.Summary `json:"weather_summary,omitempty"`
	WeatherOrigin   string           `json:"weather_origin,omitempty"`
	Features        model.Features   `json:"features,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// Plan returns the recommended application.
func (r Recommendation) Plan() optimization.NutrientPlan {
	return optimization.NutrientPlan{N: r.RecommendedN, P: r.RecommendedP, K: r.RecommendedK}
}

// Advisor wires the featurizer and optimizer together.
type Advisor struct {
	logger     *zap.Logger
	featurizer Featurizer
	optimizer  Optimizer
	metrics    *metrics.Metrics
	timeout    time.Duration
}

// New returns an Advisor. featurizer may be nil when only feature-based
// recommendations are needed. A non-positive timeout disables the per-call
// deadline.
func New(logger *zap.Logger, featurizer Featurizer, optimizer Optimizer, m *metrics.Metrics, timeout time.Duration) (*Advisor, error) {
	if optimizer == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{logger: logger, featurizer: featurizer, optimizer: optimizer, metrics: m, timeout: timeout}, nil
}

// Recommend featurizes the requested field and optimizes its plan.
func (a *Advisor) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	if err := validation.ValidateBudget(req.Budget); err != nil {
		return Recommendation{}, err
	}
	if a.featurizer == nil {
		return Recommendation{}, fmt.Errorf("no field catalog configured")
	}

	set, err := a.featurizer.Featurize(ctx, req.FieldID, req.Crop)
	if err != nil {
		return Recommendation{}, err
	}
	if set.WeatherOrigin != fields.WeatherFromArchive {
		a.metrics.WeatherFallback()
	}

	rec, err := a.RecommendFeatures(ctx, req.Budget, set.Features)
	if err != nil {
		return Recommendation{}, fmt.Errorf("field %q: %w", req.FieldID, err)
	}
	rec.FieldID = set.Field.ID
	rec.Crop = req.Crop
	if rec.Crop == "" {
		rec.Crop = set.Season.Crop
	}
	rec.SeasonYear = set.Season.Year
	rec.WeatherSummary = set.Weather
	rec.WeatherOrigin = set.WeatherOrigin
	return rec, nil
}

// RecommendFeatures optimizes directly from features, bypassing the catalog.
func (a *Advisor) RecommendFeatures(ctx context.Context, budget float64, features model.Features) (Recommendation, error) {
	if err := validation.ValidateBudget(budget); err != nil {
		return Recommendation{}, err
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := a.optimizer.Optimize(ctx, budget, features)
	elapsed := time.Since(started)
	if err != nil {
		a.metrics.ObserveOptimization("Error", elapsed, 0)
		return Recommendation{}, err
	}
	a.metrics.ObserveOptimization(result.Status.String(), elapsed, result.Iterations)

	halfWidth := constants.IntervalZScore * result.YieldStdDev
	rec := Recommendation{
		Budget:          budget,
		RecommendedN:    result.Plan.N,
		RecommendedP:    result.Plan.P,
		RecommendedK:    result.Plan.K,
		Cost:            result.Cost,
		YieldMean:       result.YieldMean,
		YieldStdDev:     result.YieldStdDev,
		Yield5th:        result.Yield5th,
		YieldCILow:      mathutil.Round(result.YieldMean - halfWidth),
		YieldCIHigh:     mathutil.Round(result.YieldMean + halfWidth),
		Profit5th:       result.Profit5th,
		Status:          result.Status.String(),
		Message:         result.Message,
		Iterations:      result.Iterations,
		Features:        features.Clone(),
		DurationSeconds: elapsed.Seconds(),
	}

	a.logger.Info("recommendation computed",
		zap.String("op", "advisor.RecommendFeatures"),
		zap.String("status", rec.Status),
		zap.Float64("budget", budget),
		zap.Duration("duration", elapsed),
	)
	return rec, nil
}
