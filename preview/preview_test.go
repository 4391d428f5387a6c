package preview

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"lst-tools/blur"
)

func TestPercentileRange(t *testing.T) {
	data := make([]float32, 101)
	for i := range data {
		data[i] = float32(i)
	}
	data[50] = float32(math.NaN())

	lo, hi := percentileRange(data, 2, 98)
	// 100 finite values 0..100 without 50.
	if math.Abs(lo-1.98) > 1e-9 || math.Abs(hi-98.02) > 1e-9 {
		t.Errorf("got %v, %v", lo, hi)
	}
}

func TestRamp(t *testing.T) {
	if got := ramp(math.NaN(), 0, 1); got != noDataColor {
		t.Errorf("NaN drew %v", got)
	}
	if got := ramp(-5, 0, 1); got != inferno[0] {
		t.Errorf("below range drew %v", got)
	}
	if got := ramp(5, 0, 1); got != inferno[len(inferno)-1] {
		t.Errorf("above range drew %v", got)
	}
}

func TestBeforeAfter(t *testing.T) {
	before := blur.Grid{Width: 3, Height: 2, Data: []float32{0, 10, 20, 30, 40, float32(math.NaN())}}
	after := before.Clone()

	img := BeforeAfter(before, after, 4)
	if b := img.Bounds(); b.Dx() != 24 || b.Dy() != 8 {
		t.Fatalf("bounds %v, want 24x8", b)
	}
	// Both panels share one scale, so identical grids draw identical pixels.
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			if img.RGBAAt(x, y) != img.RGBAAt(x+12, y) {
				t.Fatalf("panels differ at (%d,%d)", x, y)
			}
		}
	}
	if got := img.RGBAAt(11, 7); got != noDataColor {
		t.Errorf("NaN pixel drew %v", got)
	}
	if got := img.RGBAAt(0, 0); got != inferno[0] {
		t.Errorf("minimum drew %v", got)
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	img := BeforeAfter(blur.Fill(2, 2, 1), blur.Fill(2, 2, 1), 2)
	if err := WritePNG(path, img); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
