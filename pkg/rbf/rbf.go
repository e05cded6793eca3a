// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package rbf implements radial basis function interpolation of scattered
// 2-D samples.
//
// The default kernel is the multiquadric sqrt((r/eps)^2 + 1) with eps set to
// the mean node spacing of the samples' bounding box, which reproduces the
// common scientific-Python defaults. Weights are solved exactly (no
// smoothing) with an LU factorization.
package rbf

import (
	stderrors "errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"mirrorsim/pkg/errors"
)

// Kernel evaluates the radial function at distance r with shape eps.
type Kernel func(r, eps float64) float64

// Multiquadric is sqrt((r/eps)^2 + 1).
func Multiquadric(r, eps float64) float64 {
	q := r / eps
	return math.Sqrt(q*q + 1)
}

// InverseMultiquadric is 1/sqrt((r/eps)^2 + 1).
func InverseMultiquadric(r, eps float64) float64 {
	return 1 / Multiquadric(r, eps)
}

// Gaussian is exp(-(r/eps)^2).
func Gaussian(r, eps float64) float64 {
	q := r / eps
	return math.Exp(-q * q)
}

type options struct {
	kernel  Kernel
	epsilon float64
	smooth  float64
}

// Option configures New.
type Option func(*options)

// WithKernel selects the radial function.
func WithKernel(k Kernel) Option {
	return func(o *options) { o.kernel = k }
}

// WithEpsilon overrides the shape parameter.
func WithEpsilon(eps float64) Option {
	return func(o *options) { o.epsilon = eps }
}

// WithSmooth relaxes exact interpolation; 0 interpolates exactly.
func WithSmooth(s float64) Option {
	return func(o *options) { o.smooth = s }
}

// Interpolant is an immutable fitted RBF. Eval is safe for concurrent use.
type Interpolant struct {
	x, y    []float64
	weights []float64
	eps     float64
	kernel  Kernel
}

// New fits an interpolant through (x[i], y[i]) -> z[i].
func New(x, y, z []float64, opts ...Option) (*Interpolant, error) {
	n := len(x)
	if len(y) != n {
		return nil, errors.DataShapeError("y samples", len(y), n)
	}
	if len(z) != n {
		return nil, errors.DataShapeError("z samples", len(z), n)
	}
	if n == 0 {
		return nil, errors.DataShapeErrorf("no samples to interpolate")
	}

	o := options{kernel: Multiquadric}
	for _, opt := range opts {
		opt(&o)
	}
	if o.epsilon == 0 {
		o.epsilon = defaultEpsilon(x, y)
	}
	if !(o.epsilon > 0) {
		return nil, errors.ConfigurationError("epsilon", "must be positive")
	}

	p := &Interpolant{
		x:      append([]float64(nil), x...),
		y:      append([]float64(nil), y...),
		eps:    o.epsilon,
		kernel: o.kernel,
	}

	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := p.kernel(math.Hypot(x[i]-x[j], y[i]-y[j]), p.eps)
			if i == j {
				v -= o.smooth
			}
			a.SetSym(i, j, v)
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	w := mat.NewVecDense(n, nil)
	err := lu.SolveVecTo(w, false, mat.NewVecDense(n, append([]float64(nil), z...)))
	if err != nil {
		// Multiquadric systems are routinely ill-conditioned; only a truly
		// singular system (duplicate nodes) is rejected.
		var cond mat.Condition
		if !stderrors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errors.NumericError("rbf weight solve", err)
		}
	}
	p.weights = w.RawVector().Data
	for _, v := range p.weights {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NumericError("rbf weight solve", stderrors.New("non-finite weights"))
		}
	}
	return p, nil
}

// defaultEpsilon is the mean spacing of n nodes spread over the bounding
// box, ignoring degenerate axes.
func defaultEpsilon(x, y []float64) float64 {
	prod, dims := 1.0, 0
	for _, v := range [][]float64{x, y} {
		lo, hi := v[0], v[0]
		for _, e := range v[1:] {
			lo = math.Min(lo, e)
			hi = math.Max(hi, e)
		}
		if hi > lo {
			prod *= hi - lo
			dims++
		}
	}
	if dims == 0 {
		return 1
	}
	return math.Pow(prod/float64(len(x)), 1/float64(dims))
}

// Epsilon returns the shape parameter in use.
func (p *Interpolant) Epsilon() float64 { return p.eps }

// Nodes returns the number of interpolation nodes.
func (p *Interpolant) Nodes() int { return len(p.x) }

// Eval evaluates the interpolant at (x, y).
func (p *Interpolant) Eval(x, y float64) float64 {
	var s float64
	for i, w := range p.weights {
		s += w * p.kernel(math.Hypot(x-p.x[i], y-p.y[i]), p.eps)
	}
	return s
}
