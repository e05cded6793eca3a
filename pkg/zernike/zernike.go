// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package zernike fits and evaluates Noll-normalized Zernike polynomials on
// the unit disk.
//
// Terms use Noll's single index j starting at 1 (piston). For m != 0 even j
// carries cos(m*theta) and odd j carries sin(m*theta).
package zernike

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mirrorsim/pkg/atomicfile"
	"mirrorsim/pkg/errors"
)

// MaxTerms is the highest supported Noll index.
const MaxTerms = 37

// unitDiskSlack allows for rounding in coordinates normalized by the outer
// radius.
const unitDiskSlack = 1e-9

// Coefficients holds one coefficient per Noll term, index 0 being j=1.
type Coefficients []float64

// NollToNM returns the radial order n and azimuthal frequency m >= 0 of
// Noll index j.
func NollToNM(j int) (n, m int) {
	j1 := j - 1
	for j1 > n {
		n++
		j1 -= n
	}
	m = n%2 + 2*((j1+(n+1)%2)/2)
	return n, m
}

// radial evaluates R_n^m(rho).
func radial(n, m int, rho float64) float64 {
	var r float64
	for k := 0; k <= (n-m)/2; k++ {
		c := float64(factorial(n-k)) /
			float64(factorial(k)*factorial((n+m)/2-k)*factorial((n-m)/2-k))
		if k%2 == 1 {
			c = -c
		}
		r += c * math.Pow(rho, float64(n-2*k))
	}
	return r
}

func factorial(n int) int64 {
	f := int64(1)
	for i := int64(2); i <= int64(n); i++ {
		f *= i
	}
	return f
}

// Term evaluates basis function j at (x, y).
func Term(j int, x, y float64) float64 {
	n, m := NollToNM(j)
	rho := math.Hypot(x, y)
	r := radial(n, m, rho)
	if m == 0 {
		return math.Sqrt(float64(n+1)) * r
	}
	theta := math.Atan2(y, x)
	norm := math.Sqrt(2 * float64(n+1))
	if j%2 == 0 {
		return norm * r * math.Cos(float64(m)*theta)
	}
	return norm * r * math.Sin(float64(m)*theta)
}

// CheckTerms reports a CONFIGURATION error unless 1 <= numTerms <= MaxTerms.
func CheckTerms(numTerms int) error {
	if numTerms < 1 || numTerms > MaxTerms {
		return errors.ConfigurationError("num_terms",
			fmt.Sprintf("must be in [1, %d], got %d", MaxTerms, numTerms))
	}
	return nil
}

func checkSamples(x, y []float64, values ...[]float64) error {
	if len(y) != len(x) {
		return errors.DataShapeError("y samples", len(y), len(x))
	}
	for _, v := range values {
		if len(v) != len(x) {
			return errors.DataShapeError("values", len(v), len(x))
		}
	}
	return nil
}

// design builds the len(x) x numTerms basis matrix.
func design(x, y []float64, numTerms int) *mat.Dense {
	a := mat.NewDense(len(x), numTerms, nil)
	for i := range x {
		for j := 1; j <= numTerms; j++ {
			a.Set(i, j-1, Term(j, x[i], y[i]))
		}
	}
	return a
}

// Fit returns the least-squares coefficients of the first numTerms basis
// functions for values sampled at (x, y). Coordinates must lie on the unit
// disk.
func Fit(values, x, y []float64, numTerms int) (Coefficients, error) {
	if err := CheckTerms(numTerms); err != nil {
		return nil, err
	}
	if err := checkSamples(x, y, values); err != nil {
		return nil, err
	}
	if len(x) < numTerms {
		return nil, errors.DataShapeError("samples for fit", len(x), numTerms)
	}
	for i := range x {
		if x[i]*x[i]+y[i]*y[i] > 1+unitDiskSlack {
			return nil, errors.DataShapeErrorf(
				"sample %d at (%g, %g) lies outside the unit disk", i, x[i], y[i]).
				SetContext("index", i)
		}
	}

	a := design(x, y, numTerms)
	b := mat.NewVecDense(len(values), append([]float64(nil), values...))
	c := mat.NewVecDense(numTerms, nil)

	qr := new(mat.QR)
	qr.Factorize(a)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		return nil, errors.NumericError("zernike least squares", err)
	}
	return Coefficients(mat.Col(nil, 0, c)), nil
}

// Eval evaluates the expansion c at (x, y).
func Eval(c Coefficients, x, y []float64) ([]float64, error) {
	if len(c) > MaxTerms {
		return nil, errors.ConfigurationError("coefficients",
			fmt.Sprintf("at most %d terms, got %d", MaxTerms, len(c)))
	}
	if err := checkSamples(x, y); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i := range x {
		var s float64
		for j, cj := range c {
			if cj != 0 {
				s += cj * Term(j+1, x[i], y[i])
			}
		}
		out[i] = s
	}
	return out, nil
}

// Residual returns values minus the expansion c at (x, y).
func Residual(values []float64, c Coefficients, x, y []float64) ([]float64, error) {
	if err := checkSamples(x, y, values); err != nil {
		return nil, err
	}
	fitted, err := Eval(c, x, y)
	if err != nil {
		return nil, err
	}
	res := make([]float64, len(values))
	floats.SubTo(res, values, fitted)
	return res, nil
}

// FitResidual fits numTerms terms and returns the residual with the
// coefficients.
func FitResidual(values, x, y []float64, numTerms int) ([]float64, Coefficients, error) {
	c, err := Fit(values, x, y, numTerms)
	if err != nil {
		return nil, nil, err
	}
	res, err := Residual(values, c, x, y)
	if err != nil {
		return nil, nil, err
	}
	return res, c, nil
}

// RMS returns the root mean square of v.
func RMS(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2) / math.Sqrt(float64(len(v)))
}

// WriteTo writes one coefficient per line.
func (c Coefficients) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, v := range c {
		n, err := fmt.Fprintf(w, "%.9E\n", v)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteCoefficients writes c to path, replacing any previous file only
// once the whole content is written.
func WriteCoefficients(path string, c Coefficients) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		if _, err := c.WriteTo(w); err != nil {
			return errors.IOError(path, err)
		}
		return nil
	})
}
