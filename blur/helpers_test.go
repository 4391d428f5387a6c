package blur

import (
	"math"
	"math/rand"
	"testing"
)

func randomGrid(width, height int, seed int64) Grid {
	rng := rand.New(rand.NewSource(seed))
	g := NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = rng.Float32() * 40
	}
	return g
}

func isNaN32(v float32) bool {
	return math.IsNaN(float64(v))
}

func assertAllNear(t *testing.T, name string, g Grid, want float32, tol float64) {
	t.Helper()
	for i, v := range g.Data {
		if math.Abs(float64(v-want)) > tol || isNaN32(v) {
			t.Fatalf("%s: cell %d = %v, want %v", name, i, v, want)
		}
	}
}

func chebyshev(r1, c1, r2, c2 int) int {
	dr, dc := r1-r2, c1-c2
	if dr < 0 {
		dr = -dr
	}
	if dc < 0 {
		dc = -dc
	}
	return max(dr, dc)
}
