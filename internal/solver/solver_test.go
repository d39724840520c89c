package solver

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadratic(cx, cy float64) func([]float64) float64 {
	return func(x []float64) float64 {
		return (x[0]-cx)*(x[0]-cx) + (x[1]-cy)*(x[1]-cy)
	}
}

func box2(fn func([]float64) float64, max float64) Problem {
	return Problem{
		Func:  fn,
		Lower: []float64{0, 0},
		Upper: []float64{5, 5},
		Constraint: LinearInequality{
			Coefficients: []float64{1, 1},
			Min:          0,
			Max:          max,
		},
	}
}

var tight = Settings{Tolerance: 1e-14, MaxIterations: 200}

func TestMinimizeInteriorOptimum(t *testing.T) {
	res, err := Minimize(context.Background(), box2(quadratic(1, 2), 10), []float64{4, 4}, tight)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, MsgConverged, res.Message)
	assert.InDelta(t, 1.0, res.X[0], 1e-4)
	assert.InDelta(t, 2.0, res.X[1], 1e-4)
	assert.Greater(t, res.FuncEvaluations, 0)
}

func TestMinimizeActiveLinearConstraint(t *testing.T) {
	res, err := Minimize(context.Background(), box2(quadratic(3, 3), 4), []float64{0.5, 0.5}, tight)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.InDelta(t, 2.0, res.X[0], 1e-4)
	assert.InDelta(t, 2.0, res.X[1], 1e-4)
	assert.LessOrEqual(t, res.X[0]+res.X[1], 4+1e-9)
}

func TestMinimizeActiveBound(t *testing.T) {
	res, err := Minimize(context.Background(), box2(quadratic(-1, 2), 10), []float64{1, 1}, tight)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 0.0, res.X[0])
	assert.InDelta(t, 2.0, res.X[1], 1e-4)
}

func TestMinimizeInfeasibleStartIsProjected(t *testing.T) {
	res, err := Minimize(context.Background(), box2(quadratic(1, 1), 1), []float64{5, 5}, tight)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.LessOrEqual(t, res.X[0]+res.X[1], 1+1e-9)
	assert.InDelta(t, 0.5, res.X[0], 1e-4)
	assert.InDelta(t, 0.5, res.X[1], 1e-4)
}

func TestMinimizeDegenerateConstraint(t *testing.T) {
	prob := box2(quadratic(1, 2), 10)
	prob.Constraint.Coefficients = []float64{0, 0}

	res, err := Minimize(context.Background(), prob, []float64{1, 1}, tight)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgDegenerate, res.Message)
}

func TestMinimizeIncompatibleConstraint(t *testing.T) {
	prob := box2(quadratic(1, 2), 1)
	prob.Lower = []float64{1, 1}

	res, err := Minimize(context.Background(), prob, []float64{1, 1}, tight)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgIncompatible, res.Message)
}

func TestMinimizeIterationLimit(t *testing.T) {
	rosenbrock := func(x []float64) float64 {
		a := 1 - x[0]
		b := x[1] - x[0]*x[0]
		return a*a + 100*b*b
	}
	prob := Problem{
		Func:       rosenbrock,
		Lower:      []float64{-5, -5},
		Upper:      []float64{5, 5},
		Constraint: LinearInequality{Coefficients: []float64{1, 1}, Min: -100, Max: 100},
	}

	res, err := Minimize(context.Background(), prob, []float64{-1.2, 1}, Settings{Tolerance: 1e-14, MaxIterations: 2})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgIterationLimit, res.Message)
	assert.Equal(t, 2, res.Iterations)
}

func TestMinimizeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Minimize(ctx, box2(quadratic(1, 2), 10), []float64{4, 4}, tight)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, context.Canceled.Error(), res.Message)
}

func TestMinimizeNonFiniteObjective(t *testing.T) {
	prob := box2(func([]float64) float64 { return math.NaN() }, 10)

	_, err := Minimize(context.Background(), prob, []float64{1, 1}, tight)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonFinite))
}

func TestMinimizeRejectsMalformedProblems(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(p *Problem)
		x0       []float64
		settings Settings
	}{
		{"nil func", func(p *Problem) { p.Func = nil }, []float64{1, 1}, tight},
		{"dimension mismatch", func(p *Problem) { p.Upper = []float64{1} }, []float64{1, 1}, tight},
		{"inverted bounds", func(p *Problem) { p.Lower = []float64{6, 0} }, []float64{1, 1}, tight},
		{"nan coefficient", func(p *Problem) { p.Constraint.Coefficients = []float64{math.NaN(), 1} }, []float64{1, 1}, tight},
		{"short start", func(p *Problem) {}, []float64{1}, tight},
		{"no iterations", func(p *Problem) {}, []float64{1, 1}, Settings{Tolerance: 1e-7}},
		{"no tolerance", func(p *Problem) {}, []float64{1, 1}, Settings{MaxIterations: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob := box2(quadratic(1, 2), 10)
			tt.mutate(&prob)
			_, err := Minimize(context.Background(), prob, tt.x0, tt.settings)
			assert.Error(t, err)
		})
	}
}

func TestProjectAlwaysFeasible(t *testing.T) {
	prob := Problem{
		Func:  func([]float64) float64 { return 0 },
		Lower: []float64{0, 0, 0},
		Upper: []float64{250, 150, 150},
		Constraint: LinearInequality{
			Coefficients: []float64{40, 80, 30},
			Min:          0,
			Max:          5000,
		},
	}
	s := &state{prob: prob}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		y := []float64{
			rng.Float64()*600 - 100,
			rng.Float64()*400 - 100,
			rng.Float64()*400 - 100,
		}
		x := s.project(y)
		cost := 40*x[0] + 80*x[1] + 30*x[2]
		require.LessOrEqual(t, cost, 5000+1e-9, "projection of %v violates budget", y)
		for j := range x {
			require.GreaterOrEqual(t, x[j], prob.Lower[j])
			require.LessOrEqual(t, x[j], prob.Upper[j])
		}
	}
}

func TestProjectRaisesToMinimum(t *testing.T) {
	prob := box2(quadratic(0, 0), 10)
	prob.Constraint.Min = 2
	s := &state{prob: prob}

	x := s.project([]float64{0, 0})
	assert.GreaterOrEqual(t, x[0]+x[1], 2.0)
	assert.InDelta(t, 1.0, x[0], 1e-9)
	assert.InDelta(t, 1.0, x[1], 1e-9)
}
