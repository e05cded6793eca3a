// Parallel grid resampling with finite-difference derivatives
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gridmap

import (
	"context"
	"runtime"
	"sync"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/pool"
)

// Surface is a continuous surface to sample.
type Surface interface {
	Eval(x, y float64) float64
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(x, y float64) float64

// Eval calls f(x, y).
func (f SurfaceFunc) Eval(x, y float64) float64 { return f(x, y) }

// Options tunes Resample.
type Options struct {
	// Workers is the number of goroutines evaluating rows. Zero means
	// runtime.NumCPU().
	Workers int
	Logger  *log.Logger
}

// Resample samples f on the padded grid for radii with nx x ny interior
// nodes. Nodes outside the extended annulus are zero. Rows are evaluated
// concurrently; the result is in row-major order regardless of Workers.
func Resample(ctx context.Context, f Surface, radii Radii, nx, ny int, opts Options) (*Map, error) {
	g, err := NewGrid(radii, nx, ny)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > g.NumX {
		workers = g.NumX
	}
	logger := log.OrDiscard(opts.Logger)
	logger.Debug("resampling %dx%d grid, pitch %.6g x %.6g, %d workers",
		g.NumX, g.NumY, g.PitchX, g.PitchY, workers)

	m := &Map{
		NumX:   g.NumX,
		NumY:   g.NumY,
		PitchX: g.PitchX,
		PitchY: g.PitchY,
		Nodes:  make([]Node, g.NumX*g.NumY),
	}

	rows := make(chan int)
	zeroCounts := make([]int, workers)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(errors.RecoverPanic(r))
					// Keep draining so the producer never blocks.
					for range rows {
					}
				}
			}()
			for jj := range rows {
				zeroCounts[w] += sampleRow(f, g, jj, m.Nodes[jj*g.NumY:(jj+1)*g.NumY])
			}
		}(w)
	}

feed:
	for jj := 0; jj < g.NumX; jj++ {
		if err := ctx.Err(); err != nil {
			fail(errors.Wrap(err, errors.ErrRuntime, "resample cancelled"))
			break
		}
		select {
		case <-ctx.Done():
			fail(errors.Wrap(ctx.Err(), errors.ErrRuntime, "resample cancelled"))
			break feed
		case rows <- jj:
		}
	}
	close(rows)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	for _, n := range zeroCounts {
		m.ZeroFilled += n
	}
	return m, nil
}

// sampleRow fills row jj and returns the number of zero-filled nodes.
func sampleRow(f Surface, g Grid, jj int, row []Node) int {
	stencil := pool.GetFloat64Slice(pool.StencilSize)
	defer pool.PutFloat64Slice(stencil)

	zeros := 0
	e := g.Epsilon
	for ii := range row {
		x, y := g.Position(jj, ii)
		if !g.Inside(x, y) {
			row[ii] = Node{}
			zeros++
			continue
		}
		stencil[0] = f.Eval(x, y)
		stencil[1] = f.Eval(x+e, y)
		stencil[2] = f.Eval(x-e, y)
		stencil[3] = f.Eval(x, y+e)
		stencil[4] = f.Eval(x, y-e)
		stencil[5] = f.Eval(x+e, y+e)
		stencil[6] = f.Eval(x-e, y+e)
		stencil[7] = f.Eval(x+e, y-e)
		stencil[8] = f.Eval(x-e, y-e)

		upper := (stencil[5] - stencil[6]) / (2 * e)
		lower := (stencil[7] - stencil[8]) / (2 * e)
		row[ii] = Node{
			Value: stencil[0],
			DX:    (stencil[1] - stencil[2]) / (2 * e),
			DY:    (stencil[3] - stencil[4]) / (2 * e),
			DXDY:  (upper - lower) / (2 * e),
		}
	}
	return zeros
}
