// Package indices derives per-pixel indices and summary statistics from
// single-band grids.
package indices

import (
	"errors"
	"fmt"
	"math"

	"lst-tools/blur"
)

// ndviEpsilon keeps NDVI finite over pixels where both bands are zero.
const ndviEpsilon = 1e-10

var ErrShapeMismatch = errors.New("grid shapes differ")

func sameShape(a, b blur.Grid) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

// NDVI computes (NIR-RED)/(NIR+RED) per pixel.
func NDVI(red, nir blur.Grid) (blur.Grid, error) {
	if err := sameShape(red, nir); err != nil {
		return blur.Grid{}, err
	}
	out := blur.NewGrid(red.Width, red.Height)
	for i := range out.Data {
		r, n := float64(red.Data[i]), float64(nir.Data[i])
		out.Data[i] = float32((n - r) / (n + r + ndviEpsilon))
	}
	return out, nil
}

// Threshold returns a copy of g with every value above limit set to NaN.
func Threshold(g blur.Grid, limit float32) blur.Grid {
	out := g.Clone()
	nan := float32(math.NaN())
	for i, v := range out.Data {
		if v > limit {
			out.Data[i] = nan
		}
	}
	return out
}

// MaskEqual returns a copy of g with every value equal to v set to NaN.
func MaskEqual(g blur.Grid, v float32) blur.Grid {
	out := g.Clone()
	nan := float32(math.NaN())
	for i, x := range out.Data {
		if x == v {
			out.Data[i] = nan
		}
	}
	return out
}

// Pearson returns the correlation coefficient of a and b over the pixels
// finite in both, and how many such pixels there were.
func Pearson(a, b blur.Grid) (float64, int, error) {
	if err := sameShape(a, b); err != nil {
		return 0, 0, err
	}
	var n int
	var sumA, sumB float64
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if !finite(x) || !finite(y) {
			continue
		}
		sumA += x
		sumB += y
		n++
	}
	if n < 2 {
		return 0, n, fmt.Errorf("need at least 2 finite pairs, have %d", n)
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if !finite(x) || !finite(y) {
			continue
		}
		dx, dy := x-meanA, y-meanB
		cov += dx * dy
		varA += dx * dx
		varB += dy * dy
	}
	if varA == 0 || varB == 0 {
		return 0, n, errors.New("constant input has no correlation")
	}
	return cov / math.Sqrt(varA*varB), n, nil
}

// SeriesStats summarises the finite values of g. With no finite values mean,
// min and max are NaN and n is 0.
func SeriesStats(g blur.Grid) (mean, min, max float64, n int) {
	var sum float64
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		x := float64(v)
		if !finite(x) {
			continue
		}
		sum += x
		min = math.Min(min, x)
		max = math.Max(max, x)
		n++
	}
	if n == 0 {
		nan := math.NaN()
		return nan, nan, nan, 0
	}
	return sum / float64(n), min, max, n
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
