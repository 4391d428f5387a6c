package blur

import "math"

// Grid is a single-band raster held row-major in memory. Missing samples are
// NaN.
type Grid struct {
	Width  int
	Height int
	Data   []float32
}

// NewGrid allocates a zeroed width x height grid.
func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Data: make([]float32, width*height)}
}

// Fill returns a width x height grid with every cell set to value.
func Fill(width, height int, value float32) Grid {
	g := NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = value
	}
	return g
}

func (g Grid) At(row, col int) float32 {
	return g.Data[row*g.Width+col]
}

func (g Grid) Set(row, col int, v float32) {
	g.Data[row*g.Width+col] = v
}

// Clone returns a deep copy so that callers cannot observe each other's writes.
func (g Grid) Clone() Grid {
	data := make([]float32, len(g.Data))
	copy(data, g.Data)
	return Grid{Width: g.Width, Height: g.Height, Data: data}
}

// ValidateShape checks that a width x height grid is non-empty and that its
// cell count fits in an int.
func ValidateShape(width, height int) error {
	if width < 1 || height < 1 {
		return invalidParam("grid must be at least 1x1, got %dx%d", width, height)
	}
	if width > math.MaxInt/height {
		return invalidParam("grid %dx%d has too many cells", width, height)
	}
	return nil
}

// Validate checks the dimensions against the backing slice.
func (g Grid) Validate() error {
	if err := ValidateShape(g.Width, g.Height); err != nil {
		return err
	}
	if len(g.Data) != g.Width*g.Height {
		return invalidParam("grid %dx%d has %d samples", g.Width, g.Height, len(g.Data))
	}
	return nil
}

// MaxAbsDiff returns the largest absolute difference between cells that are
// finite in both grids, and how many such cells there were.
func MaxAbsDiff(a, b Grid) (float64, int) {
	var worst float64
	var n int
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		n++
		if d := math.Abs(x - y); d > worst {
			worst = d
		}
	}
	return worst, n
}

// padEdge extends g by p cells on every side, repeating the border outward.
func padEdge(g Grid, p int) Grid {
	out := NewGrid(g.Width+2*p, g.Height+2*p)
	for row := 0; row < out.Height; row++ {
		srcRow := clamp(row-p, 0, g.Height-1)
		for col := 0; col < out.Width; col++ {
			srcCol := clamp(col-p, 0, g.Width-1)
			out.Data[row*out.Width+col] = g.Data[srcRow*g.Width+srcCol]
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nanFootprint marks every cell whose edge-clamped (2r+1) x (2r+1) window
// holds a NaN. It returns nil when g has no NaN at all.
func nanFootprint(g Grid, r int) []bool {
	w, h := g.Width, g.Height
	// sat[(y+1)*(w+1)+x+1] counts NaNs in rows [0, y] and columns [0, x].
	sat := make([]int, (w+1)*(h+1))
	hasNaN := false
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			if math.IsNaN(float64(g.Data[y*w+x])) {
				rowSum++
				hasNaN = true
			}
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + rowSum
		}
	}
	if !hasNaN {
		return nil
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-r, 0, h-1), clamp(y+r, 0, h-1)+1
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-r, 0, w-1), clamp(x+r, 0, w-1)+1
			n := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			mask[y*w+x] = n > 0
		}
	}
	return mask
}
