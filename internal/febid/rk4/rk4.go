// Package rk4 integrates the precursor reaction-diffusion equation with the
// classical fourth-order Runge-Kutta method.
//
//	dn/dt = D/dx²·∇²n + F·(1 - n/n0) - n/τ - σ·f·n
//
// The adsorption term is disabled when F or n0 is zero and the desorption
// term when τ is zero, leaving pure diffusion with first-order depletion.
// The integrator does not clamp and does not sub-step; callers choose dt
// below StabilityLimit.
package rk4

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/febid/internal/febid/diffusion"
	"github.com/banshee-data/febid/internal/febid/grid"
)

// Derivative writes dy/dt evaluated at y into dst. It may overwrite
// boundary entries of y.
type Derivative func(dst, y []float64) error

// Params holds the physical constants of the precursor equation.
type Params struct {
	D        float64 // surface diffusion coefficient, nm²/s
	CellSize float64 // nm
	F        float64 // adsorption flux, 1/(nm²·s)
	N0       float64 // maximum coverage, 1/nm²
	Tau      float64 // residence time, s
	Sigma    float64 // dissociation cross-section, nm²
}

// Validate rejects negative constants and a non-positive cell size.
func (p Params) Validate() error {
	switch {
	case p.D < 0:
		return fmt.Errorf("rk4: negative diffusion coefficient %g", p.D)
	case p.CellSize <= 0:
		return fmt.Errorf("rk4: non-positive cell size %g", p.CellSize)
	case p.F < 0, p.N0 < 0, p.Tau < 0, p.Sigma < 0:
		return fmt.Errorf("rk4: negative reaction constant in %+v", p)
	}
	return nil
}

// PrecursorDensityIncrement returns the local reaction rate at density n
// under electron flux f.
func PrecursorDensityIncrement(n, f float64, p Params) float64 {
	r := -p.Sigma * f * n
	if p.F > 0 && p.N0 > 0 {
		r += p.F * (1 - n/p.N0)
	}
	if p.Tau > 0 {
		r -= n / p.Tau
	}
	return r
}

// PrecursorDensity writes the full time derivative of n into dst: diffusion
// plus reaction at active cells, zero elsewhere. Ghost entries of n are
// refreshed first.
func PrecursorDensity(dst, n, flux []float64, g *grid.Grid, op *diffusion.Operator, p Params) error {
	for i := range dst {
		dst[i] = 0
	}
	g.RefreshGhosts(n, op.Kernel.Dims)
	if p.D > 0 {
		if err := op.Compute(dst, n, g); err != nil {
			return err
		}
	}
	scale := p.D / (p.CellSize * p.CellSize)
	for _, idx := range g.Active {
		dst[idx] = scale*dst[idx] + PrecursorDensityIncrement(n[idx], flux[idx], p)
	}
	return nil
}

// StabilityLimit is the largest explicit time step for which diffusion on a
// dims-dimensional grid stays stable. D <= 0 gives +Inf.
func StabilityLimit(dx, D float64, dims int) float64 {
	if D <= 0 || dims <= 0 {
		return math.Inf(1)
	}
	return dx * dx / (2 * D * float64(dims))
}

// ErrAliasedOutput is returned when the RK4 output buffer is the input.
var ErrAliasedOutput = errors.New("rk4: output buffer aliases input")

// Integrator carries the stage buffers between steps.
type Integrator struct {
	k1, k2, k3, k4, stage []float64
}

func (it *Integrator) ensure(n int) {
	if len(it.stage) == n {
		return
	}
	it.k1 = make([]float64, n)
	it.k2 = make([]float64, n)
	it.k3 = make([]float64, n)
	it.k4 = make([]float64, n)
	it.stage = make([]float64, n)
}

// Step advances y by dt into dst with weights (1, 2, 2, 1)/6.
func (it *Integrator) Step(dst, y []float64, dt float64, f Derivative) error {
	if len(dst) != len(y) {
		return fmt.Errorf("rk4: output length %d, input length %d", len(dst), len(y))
	}
	if len(y) > 0 && &dst[0] == &y[0] {
		return ErrAliasedOutput
	}
	it.ensure(len(y))

	copy(it.stage, y)
	if err := f(it.k1, it.stage); err != nil {
		return err
	}
	floats.AddScaledTo(it.stage, y, dt/2, it.k1)
	if err := f(it.k2, it.stage); err != nil {
		return err
	}
	floats.AddScaledTo(it.stage, y, dt/2, it.k2)
	if err := f(it.k3, it.stage); err != nil {
		return err
	}
	floats.AddScaledTo(it.stage, y, dt, it.k3)
	if err := f(it.k4, it.stage); err != nil {
		return err
	}

	w := dt / 6
	for i := range dst {
		dst[i] = y[i] + w*(it.k1[i]+2*it.k2[i]+2*it.k3[i]+it.k4[i])
	}
	return nil
}

// Step advances y by dt and returns the result in a fresh buffer.
func Step(y []float64, dt float64, f Derivative) ([]float64, error) {
	var it Integrator
	dst := make([]float64, len(y))
	if err := it.Step(dst, y, dt, f); err != nil {
		return nil, err
	}
	return dst, nil
}

// Diffusion advances the precursor density by dt into dst. Every stage
// refreshes ghost cells on its own estimate before the Laplacian runs.
func (it *Integrator) Diffusion(dst, density []float64, dt float64, flux []float64, g *grid.Grid, op *diffusion.Operator, p Params) error {
	return it.Step(dst, density, dt, func(out, n []float64) error {
		return PrecursorDensity(out, n, flux, g, op, p)
	})
}

// Diffusion advances density by dt and returns the new field.
func Diffusion(density []float64, dt float64, flux []float64, g *grid.Grid, op *diffusion.Operator, p Params) ([]float64, error) {
	var it Integrator
	dst := make([]float64, len(density))
	if err := it.Diffusion(dst, density, dt, flux, g, op, p); err != nil {
		return nil, err
	}
	return dst, nil
}
