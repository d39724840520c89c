// Package solver minimizes a smooth function over a box intersected with a
// single two-sided linear inequality, lo <= c·x <= hi.
//
// The method is projected gradient descent with Barzilai-Borwein step
// lengths and an Armijo backtracking search along the projection arc.
// Gradients come from central finite differences. Projection onto the
// feasible set is exact: the box clamp is shifted along c by a multiplier
// found by bisection.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/npk-advisor/pkg/mathutil"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// ErrNonFinite is returned when the objective produces NaN or Inf at a
// feasible point. It signals a defect in the objective, not a convergence
// failure.
var ErrNonFinite = errors.New("objective returned a non-finite value")

// Diagnostic messages reported in Result.Message.
const (
	MsgConverged      = "Optimization terminated successfully"
	MsgIterationLimit = "Iteration limit reached"
	MsgLineSearch     = "Positive directional derivative for linesearch"
	MsgIncompatible   = "Inequality constraints incompatible"
	MsgDegenerate     = "Singular constraint: all coefficients are zero"
)

const (
	armijo          = 1e-4
	maxBacktracks   = 40
	bisectionSteps  = 200
	minStep         = 1e-12
	maxStep         = 1e12
	stationarityTol = 1e-10
)

// LinearInequality is the constraint Min <= Coefficients·x <= Max.
type LinearInequality struct {
	Coefficients []float64
	Min          float64
	Max          float64
}

// Problem describes a bounded, linearly constrained minimization.
type Problem struct {
	Func       func(x []float64) float64
	Lower      []float64
	Upper      []float64
	Constraint LinearInequality
}

// Settings control convergence.
type Settings struct {
	// Tolerance is the relative change in the objective below which the
	// iteration is considered converged.
	Tolerance float64
	// MaxIterations caps the number of outer iterations.
	MaxIterations int
	// GradientStep is the finite difference step. Zero selects a default.
	GradientStep float64
}

// Result reports the final iterate and why the iteration stopped.
type Result struct {
	X               []float64
	F               float64
	Iterations      int
	FuncEvaluations int
	Success         bool
	Message         string
}

// Validate checks that the problem is well formed.
func (p Problem) Validate() error {
	if p.Func == nil {
		return fmt.Errorf("objective function cannot be nil")
	}
	dim := len(p.Lower)
	if dim == 0 {
		return fmt.Errorf("problem must have at least one dimension")
	}
	if len(p.Upper) != dim || len(p.Constraint.Coefficients) != dim {
		return fmt.Errorf("dimension mismatch: lower=%d upper=%d constraint=%d",
			dim, len(p.Upper), len(p.Constraint.Coefficients))
	}
	for i := 0; i < dim; i++ {
		if math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) || p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("invalid bounds for dimension %d: [%v, %v]", i, p.Lower[i], p.Upper[i])
		}
		c := p.Constraint.Coefficients[i]
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("constraint coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(p.Constraint.Min) || math.IsNaN(p.Constraint.Max) {
		return fmt.Errorf("constraint limits cannot be NaN")
	}
	return nil
}

// Minimize runs the solver from x0. Convergence failures are reported
// through Result.Success and Result.Message; the returned error is reserved
// for malformed problems and non-finite objective values.
func Minimize(ctx context.Context, prob Problem, x0 []float64, settings Settings) (Result, error) {
	if err := prob.Validate(); err != nil {
		return Result{}, err
	}
	if len(x0) != len(prob.Lower) {
		return Result{}, fmt.Errorf("initial point has %d components, expected %d", len(x0), len(prob.Lower))
	}
	if settings.MaxIterations <= 0 {
		return Result{}, fmt.Errorf("max iterations must be positive, got %d", settings.MaxIterations)
	}
	if !(settings.Tolerance > 0) {
		return Result{}, fmt.Errorf("tolerance must be positive, got %v", settings.Tolerance)
	}

	s := &state{prob: prob, settings: settings}
	return s.run(ctx, x0)
}

type state struct {
	prob     Problem
	settings Settings
	evals    int
}

func (s *state) fail(x []float64, f float64, iter int, msg string) Result {
	return Result{X: x, F: f, Iterations: iter, FuncEvaluations: s.evals, Success: false, Message: msg}
}

func (s *state) run(ctx context.Context, x0 []float64) (Result, error) {
	start := append([]float64(nil), x0...)
	c := s.prob.Constraint.Coefficients

	if floats.Norm(c, math.Inf(1)) == 0 {
		return s.fail(start, math.NaN(), 0, MsgDegenerate), nil
	}
	if !s.feasible() {
		return s.fail(start, math.NaN(), 0, MsgIncompatible), nil
	}

	x := s.project(start)
	f, err := s.eval(x)
	if err != nil {
		return Result{}, err
	}
	g, err := s.gradient(x, f)
	if err != nil {
		return Result{}, err
	}

	step := 1 / math.Max(1, floats.Norm(g, math.Inf(1)))
	dim := len(x)
	trial := make([]float64, dim)
	next := make([]float64, dim)
	sVec := make([]float64, dim)
	yVec := make([]float64, dim)

	for iter := 1; iter <= s.settings.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return s.fail(x, f, iter-1, err.Error()), nil
		}

		// Stationary when a unit projected gradient step does not move.
		floats.AddScaledTo(trial, x, -1, g)
		pg := s.project(trial)
		if floats.Distance(pg, x, math.Inf(1)) <= stationarityTol*(1+floats.Norm(x, math.Inf(1))) {
			return Result{X: x, F: f, Iterations: iter, FuncEvaluations: s.evals, Success: true, Message: MsgConverged}, nil
		}

		accepted := false
		var fNext float64
		alpha := step
		for bt := 0; bt < maxBacktracks; bt++ {
			floats.AddScaledTo(trial, x, -alpha, g)
			copy(next, s.project(trial))
			fNext, err = s.eval(next)
			if err != nil {
				return Result{}, err
			}
			floats.SubTo(sVec, next, x)
			if fNext <= f+armijo*floats.Dot(g, sVec) {
				accepted = true
				break
			}
			alpha /= 2
		}
		if !accepted {
			return s.fail(x, f, iter, MsgLineSearch), nil
		}

		gNext, err := s.gradient(next, fNext)
		if err != nil {
			return Result{}, err
		}
		floats.SubTo(yVec, gNext, g)
		if sy := floats.Dot(sVec, yVec); sy > 0 {
			step = floats.Dot(sVec, sVec) / sy
		} else {
			step = alpha * 2
		}
		step = mathutil.Clamp(step, minStep, maxStep)

		change := math.Abs(f - fNext)
		x = append(x[:0], next...)
		f = fNext
		g = gNext

		if change <= s.settings.Tolerance*math.Max(1, math.Abs(f)) {
			return Result{X: x, F: f, Iterations: iter, FuncEvaluations: s.evals, Success: true, Message: MsgConverged}, nil
		}
	}

	return s.fail(x, f, s.settings.MaxIterations, MsgIterationLimit), nil
}

func (s *state) eval(x []float64) (float64, error) {
	s.evals++
	v := s.prob.Func(x)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, fmt.Errorf("%w at x=%v", ErrNonFinite, x)
	}
	return v, nil
}

func (s *state) gradient(x []float64, fx float64) ([]float64, error) {
	h := s.settings.GradientStep
	if h <= 0 {
		h = 1e-6
	}
	nonFinite := false
	wrapped := func(v []float64) float64 {
		s.evals++
		out := s.prob.Func(v)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			nonFinite = true
		}
		return out
	}
	g := fd.Gradient(nil, wrapped, x, &fd.Settings{
		Formula:     fd.Central,
		Step:        h,
		OriginKnown: true,
		OriginValue: fx,
	})
	if nonFinite {
		return nil, fmt.Errorf("%w near x=%v", ErrNonFinite, x)
	}
	return g, nil
}

// feasible reports whether the box can satisfy the linear inequality at all.
func (s *state) feasible() bool {
	lo, hi := s.constraintRange()
	con := s.prob.Constraint
	return con.Max >= lo && con.Min <= hi && con.Min <= con.Max
}

// constraintRange is the attainable range of c·x over the box.
func (s *state) constraintRange() (float64, float64) {
	var lo, hi float64
	for i, c := range s.prob.Constraint.Coefficients {
		if c >= 0 {
			lo += c * s.prob.Lower[i]
			hi += c * s.prob.Upper[i]
		} else {
			lo += c * s.prob.Upper[i]
			hi += c * s.prob.Lower[i]
		}
	}
	return lo, hi
}

func (s *state) clamp(dst, y []float64) []float64 {
	for i := range y {
		dst[i] = mathutil.Clamp(y[i], s.prob.Lower[i], s.prob.Upper[i])
	}
	return dst
}

// project returns the Euclidean projection of y onto the feasible set.
// The projection has the form clamp(y - λc); c·clamp(y - λc) is
// non-increasing in λ, so λ is located by bisection and the bracket end that
// satisfies the inequality is returned.
func (s *state) project(y []float64) []float64 {
	c := s.prob.Constraint.Coefficients
	con := s.prob.Constraint
	out := s.clamp(make([]float64, len(y)), y)
	v := floats.Dot(c, out)
	if v >= con.Min && v <= con.Max {
		return out
	}

	shifted := make([]float64, len(y))
	at := func(lambda float64) float64 {
		floats.AddScaledTo(shifted, y, -lambda, c)
		s.clamp(shifted, shifted)
		return floats.Dot(c, shifted)
	}

	target := con.Max
	sign := 1.0
	if v < con.Min {
		target = con.Min
		sign = -1.0
	}
	satisfied := func(value float64) bool {
		if sign > 0 {
			return value <= target
		}
		return value >= target
	}

	// Grow the bracket until the far end satisfies the inequality.
	lo, hi := 0.0, sign
	for i := 0; i < 2000 && !satisfied(at(hi)); i++ {
		lo = hi
		hi *= 2
	}
	for i := 0; i < bisectionSteps; i++ {
		mid := (lo + hi) / 2
		if mid == lo || mid == hi {
			break
		}
		if satisfied(at(mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	at(hi)
	copy(out, shifted)
	return out
}
