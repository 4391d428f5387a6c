package blur

import (
	"errors"
	"math"
	"testing"
)

func TestGaussianKernelSumsToOne(t *testing.T) {
	for _, size := range []int{1, 3, 5, 7, 11, 21} {
		for _, sigma := range []float64{0.3, 1.0, 2.0, 5.5} {
			k, err := GaussianKernel(size, sigma)
			if err != nil {
				t.Fatalf("size %d sigma %v: %v", size, sigma, err)
			}
			if len(k.Weights) != size*size {
				t.Fatalf("size %d: got %d weights", size, len(k.Weights))
			}
			if sum := k.Sum(); math.Abs(sum-1) > 1e-5 {
				t.Errorf("size %d sigma %v: sum %v", size, sigma, sum)
			}
			for i, w := range k.Weights {
				if w < 0 {
					t.Errorf("size %d: weight %d negative: %v", size, i, w)
				}
			}
		}
	}
}

func TestGaussianKernelShape(t *testing.T) {
	k, err := GaussianKernel(5, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	center := k.Weights[2*5+2]
	for i, w := range k.Weights {
		if w > center {
			t.Errorf("weight %d (%v) exceeds centre %v", i, w, center)
		}
	}
	// Symmetric under transposition and reflection.
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if k.Weights[i*5+j] != k.Weights[j*5+i] || k.Weights[i*5+j] != k.Weights[(4-i)*5+(4-j)] {
				t.Fatalf("kernel not symmetric at (%d, %d)", i, j)
			}
		}
	}
	if k.Radius() != 2 {
		t.Errorf("got radius %d, want 2", k.Radius())
	}

	one, err := GaussianKernel(1, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if one.Weights[0] != 1 {
		t.Errorf("1x1 kernel = %v, want 1", one.Weights[0])
	}
}

func TestGaussianKernelRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		sigma float64
	}{
		{"even", 10, 1.0},
		{"zero size", 0, 1.0},
		{"negative size", -3, 1.0},
		{"zero sigma", 3, 0},
		{"negative sigma", 3, -1.5},
		{"nan sigma", 3, math.NaN()},
		{"inf sigma", 3, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GaussianKernel(tt.size, tt.sigma)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("got %v, want ErrInvalidParameter", err)
			}
		})
	}
}
