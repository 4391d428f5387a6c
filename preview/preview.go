// Package preview renders before/after panels of a blurred raster.
package preview

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sort"

	xdraw "golang.org/x/image/draw"

	"lst-tools/blur"
)

var noDataColor = color.RGBA{R: 0xd3, G: 0xd3, B: 0xd3, A: 0xff}

// Stops of an inferno-like ramp, dark to bright.
var inferno = []color.RGBA{
	{0x00, 0x00, 0x04, 0xff},
	{0x42, 0x0a, 0x68, 0xff},
	{0x93, 0x26, 0x67, 0xff},
	{0xdd, 0x51, 0x3a, 0xff},
	{0xfc, 0xa5, 0x0a, 0xff},
	{0xfc, 0xff, 0xa4, 0xff},
}

// BeforeAfter draws before on the left and after on the right, both scaled
// from the 2nd to 98th percentile of before and upscaled by scale.
func BeforeAfter(before, after blur.Grid, scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	lo, hi := percentileRange(before.Data, 2, 98)

	w, h := before.Width*scale, before.Height*scale
	out := image.NewRGBA(image.Rect(0, 0, w+after.Width*scale, max(h, after.Height*scale)))
	xdraw.NearestNeighbor.Scale(out, image.Rect(0, 0, w, h), colorize(before, lo, hi), image.Rect(0, 0, before.Width, before.Height), xdraw.Src, nil)
	xdraw.NearestNeighbor.Scale(out, image.Rect(w, 0, w+after.Width*scale, after.Height*scale), colorize(after, lo, hi), image.Rect(0, 0, after.Width, after.Height), xdraw.Src, nil)
	return out
}

func colorize(g blur.Grid, lo, hi float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			img.SetRGBA(col, row, ramp(float64(g.At(row, col)), lo, hi))
		}
	}
	return img
}

func ramp(v, lo, hi float64) color.RGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return noDataColor
	}
	t := 0.5
	if hi > lo {
		t = math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
	}
	pos := t * float64(len(inferno)-1)
	i := int(pos)
	if i >= len(inferno)-1 {
		return inferno[len(inferno)-1]
	}
	f := pos - float64(i)
	a, b := inferno[i], inferno[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}

// percentileRange returns the linearly interpolated percentiles p1 and p2 of
// the finite values. Both are NaN when there are none.
func percentileRange(data []float32, p1, p2 float64) (float64, float64) {
	finite := make([]float64, 0, len(data))
	for _, v := range data {
		x := float64(v)
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(finite)
	return percentile(finite, p1), percentile(finite, p2)
}

func percentile(sorted []float64, p float64) float64 {
	pos := p / 100 * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}

func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return png.Encode(f, img)
}
