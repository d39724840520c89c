package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/iwvelando/npk-advisor/internal/fields"
	"github.com/iwvelando/npk-advisor/internal/metrics"
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/optimizer"
	"github.com/iwvelando/npk-advisor/pkg/optimization"
	"github.com/iwvelando/npk-advisor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAdvisor(t *testing.T, m *metrics.Metrics) *Advisor {
	t.Helper()
	catalog, err := fields.ParseCatalog(strings.NewReader(testutil.SampleCatalogYAML))
	require.NoError(t, err)
	opt, err := optimizer.New(zap.NewNop(), config.DefaultCostParameters(), model.Default(), optimizer.DefaultSettings())
	require.NoError(t, err)
	adv, err := New(zap.NewNop(), fields.NewFeaturizer(nil, catalog, nil), opt, m, time.Minute)
	require.NoError(t, err)
	return adv
}

type stubOptimizer struct {
	result      optimization.Result
	err         error
	hadDeadline bool
}

func (s *stubOptimizer) Optimize(ctx context.Context, budget float64, features model.Features) (optimization.Result, error) {
	_, s.hadDeadline = ctx.Deadline()
	return s.result, s.err
}

func TestRecommendFromCatalog(t *testing.T) {
	adv := newAdvisor(t, metrics.New())

	rec, err := adv.Recommend(context.Background(), Request{FieldID: "pune-north", Crop: "rice", Budget: 5000})
	require.NoError(t, err)

	assert.Equal(t, "pune-north", rec.FieldID)
	assert.Equal(t, "rice", rec.Crop)
	assert.Equal(t, 2024, rec.SeasonYear)
	assert.Equal(t, "Success", rec.Status)
	assert.Equal(t, fields.WeatherFromCatalog, rec.WeatherOrigin)
	require.NotNil(t, rec.WeatherSummary)
	assert.Equal(t, 500.0, rec.WeatherSummary.TotalRainfallMM)

	assert.LessOrEqual(t, rec.Cost, 5000.0)
	assert.InDelta(t, 145.0, rec.YieldMean, 1e-9)
	assert.InDelta(t, 145-1.96*14.5, rec.YieldCILow, 0.01)
	assert.InDelta(t, 145+1.96*14.5, rec.YieldCIHigh, 0.01)
	assert.Equal(t, 25.0, rec.Features[model.FeatureSoilN])
}

func TestRecommendDefaultsCropToSeason(t *testing.T) {
	adv := newAdvisor(t, nil)

	rec, err := adv.Recommend(context.Background(), Request{FieldID: "nashik-east", Budget: 1000})
	require.NoError(t, err)
	assert.Equal(t, "grape", rec.Crop)
	assert.Equal(t, fields.WeatherFromDefaults, rec.WeatherOrigin)
	assert.Nil(t, rec.WeatherSummary)
}

func TestRecommendRejectsBadRequests(t *testing.T) {
	adv := newAdvisor(t, nil)

	_, err := adv.Recommend(context.Background(), Request{FieldID: "pune-north", Budget: 0})
	assert.Error(t, err)

	_, err = adv.Recommend(context.Background(), Request{FieldID: "pune-north", Budget: -5})
	assert.Error(t, err)

	_, err = adv.Recommend(context.Background(), Request{FieldID: "nowhere", Budget: 100})
	assert.True(t, errors.Is(err, fields.ErrFieldNotFound))
}

func TestRecommendWithoutCatalog(t *testing.T) {
	adv, err := New(nil, nil, &stubOptimizer{}, nil, 0)
	require.NoError(t, err)

	_, err = adv.Recommend(context.Background(), Request{FieldID: "pune-north", Budget: 100})
	assert.Error(t, err)
}

func TestRecommendFeaturesReportsOptimizerErrors(t *testing.T) {
	stub := &stubOptimizer{err: errors.New("model blew up")}
	adv, err := New(nil, nil, stub, metrics.New(), time.Second)
	require.NoError(t, err)

	_, err = adv.RecommendFeatures(context.Background(), 100, model.Features{})
	require.Error(t, err)
	assert.True(t, stub.hadDeadline)
}

func TestRecommendFeaturesCarriesFailure(t *testing.T) {
	stub := &stubOptimizer{result: optimization.Result{
		Status:  optimization.StatusFailed,
		Message: "Failed: a; Fallback failed: b",
	}}
	adv, err := New(nil, nil, stub, nil, 0)
	require.NoError(t, err)

	rec, err := adv.RecommendFeatures(context.Background(), 100, nil)
	require.NoError(t, err)
	assert.False(t, stub.hadDeadline)
	assert.Equal(t, "Failed", rec.Status)
	assert.Equal(t, "Failed: a; Fallback failed: b", rec.Message)
	assert.Equal(t, optimization.NutrientPlan{}, rec.Plan())
}

func TestNewRequiresOptimizer(t *testing.T) {
	_, err := New(nil, nil, nil, nil, 0)
	assert.Error(t, err)
}
