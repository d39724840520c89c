// Package optimization provides shared data structures for optimization results.
package optimization

import (
	"fmt"
)

// Status is the terminal state of a single optimization call.
type Status int

const (
	// StatusFailed means both the primary and the fallback solve failed.
	StatusFailed Status = iota
	// StatusSuccess means the primary solve converged.
	StatusSuccess
	// StatusFallbackSuccess means the primary solve failed and the retry from the origin converged.
	StatusFallbackSuccess
)

var statusNames = map[Status]string{
	StatusFailed:          "Failed",
	StatusSuccess:         "Success",
	StatusFallbackSuccess: "FallbackSuccess",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Succeeded reports whether the status carries a usable plan.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusFallbackSuccess
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown optimization status %d", int(s))
	}
	return []byte(s.String()), nil
}

// NutrientPlan is a fertilizer application in kg/ha.
type NutrientPlan struct {
	N float64 `json:"n"`
	P float64 `json:"p"`
	K float64 `json:"k"`
}

// Vector returns the plan as an (N, P, K) slice.
func (p NutrientPlan) Vector() []float64 {
	return []float64{p.N, p.P, p.K}
}

// PlanFromVector builds a plan from an (N, P, K) slice.
func PlanFromVector(x []float64) NutrientPlan {
	if len(x) < 3 {
		return NutrientPlan{}
	}
	return NutrientPlan{N: x[0], P: x[1], K: x[2]}
}

// Result captures the outcome of a single budget-constrained optimization.
type Result struct {
	Plan        NutrientPlan `json:"plan"`
	YieldMean   float64      `json:"yieldMean"`
	YieldStdDev float64      `json:"yieldStdDev"`
	Yield5th    float64      `json:"yield5th"`
	Profit5th   float64      `json:"profit5th"`
	Cost        float64      `json:"cost"`
	Budget      float64      `json:"budget"`
	Status      Status       `json:"status"`
	Message     string       `json:"message"`
	Iterations  int          `json:"iterations"`
}
