package blur

import (
	"errors"
	"math"
	"testing"
)

func TestPadEdgeReplicatesBorder(t *testing.T) {
	g := Grid{Width: 2, Height: 2, Data: []float32{1, 2, 3, 4}}
	got := padEdge(g, 1)
	want := []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	if got.Width != 4 || got.Height != 4 {
		t.Fatalf("got %dx%d, want 4x4", got.Width, got.Height)
	}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("got %v, want %v", got.Data, want)
		}
	}
}

func TestConvolveReferenceIdentityKernel(t *testing.T) {
	g := randomGrid(7, 5, 3)
	k, err := GaussianKernel(1, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	out, elapsed, err := ConvolveReference(g, k)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed < 0 {
		t.Errorf("negative duration %v", elapsed)
	}
	for i := range g.Data {
		if out.Data[i] != g.Data[i] {
			t.Fatalf("cell %d: got %v, want %v", i, out.Data[i], g.Data[i])
		}
	}
}

func TestConvolveReferenceKnownValue(t *testing.T) {
	// A 3x3 grid with a single hot centre: every output cell sees the centre
	// through exactly one kernel tap.
	g := NewGrid(3, 3)
	g.Set(1, 1, 9)
	k, err := GaussianKernel(3, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := ConvolveReference(g, k)
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			want := 9 * k.Weights[(2-row)*3+(2-col)]
			if diff := out.At(row, col) - want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("(%d, %d): got %v, want %v", row, col, out.At(row, col), want)
			}
		}
	}
}

func TestConvolveReferenceRejectsMalformedGrid(t *testing.T) {
	k, _ := GaussianKernel(3, 1.0)
	_, _, err := ConvolveReference(Grid{Width: 3, Height: 3, Data: make([]float32, 4)}, k)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}
}

func TestValidateRejectsOverflowingShape(t *testing.T) {
	g := Grid{Width: math.MaxInt / 2, Height: 3}
	if err := g.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}
	if _, err := RunBenchmark(g, 1, 1.0, WithDevice(PreferGeneralPurpose)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("benchmark got %v, want ErrInvalidParameter", err)
	}
}

func TestConvolveRejectsMalformedKernel(t *testing.T) {
	g := Fill(4, 4, 20)
	tests := []struct {
		name string
		k    Kernel
	}{
		{"zero", Kernel{}},
		{"even", Kernel{Size: 2, Weights: []float32{0.25, 0.25, 0.25, 0.25}}},
		{"short weights", Kernel{Size: 3, Weights: []float32{1}}},
		{"long weights", Kernel{Size: 1, Weights: []float32{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ConvolveReference(g, tt.k); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("reference got %v, want ErrInvalidParameter", err)
			}
			if _, _, _, err := ConvolveAccelerated(g, tt.k, WithDevice(PreferGeneralPurpose)); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("accelerated got %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestNaNFootprint(t *testing.T) {
	const (
		width, height = 9, 7
		radius        = 2
	)
	if got := nanFootprint(randomGrid(width, height, 1), radius); got != nil {
		t.Fatalf("finite grid has footprint %v", got)
	}

	nanCells := [][2]int{{3, 4}, {0, 8}}
	g := randomGrid(width, height, 1)
	for _, c := range nanCells {
		g.Set(c[0], c[1], float32(math.NaN()))
	}
	mask := nanFootprint(g, radius)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			want := false
			for _, c := range nanCells {
				if chebyshev(row, col, c[0], c[1]) <= radius {
					want = true
				}
			}
			if mask[row*width+col] != want {
				t.Errorf("(%d, %d): got %v, want %v", row, col, mask[row*width+col], want)
			}
		}
	}

	// The footprint must agree with what the reference actually produces.
	k, err := GaussianKernel(2*radius+1, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := ConvolveReference(g, k)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if isNaN32(v) != mask[i] {
			t.Errorf("cell %d: reference %v, footprint %v", i, v, mask[i])
		}
	}
}
