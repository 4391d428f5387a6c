package blur

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ConvolveReference blurs g with k one output cell at a time: every cell is
// the weighted sum of its K x K neighbourhood in an edge-replicated copy of g.
// NaN anywhere in a window makes that output NaN. The returned duration
// covers the convolution loop only.
func ConvolveReference(g Grid, k Kernel) (Grid, time.Duration, error) {
	if err := g.Validate(); err != nil {
		return Grid{}, 0, err
	}
	if err := k.Validate(); err != nil {
		return Grid{}, 0, err
	}
	logrus.Debug("Entered ConvolveReference")

	size := k.Size
	padded := padEdge(g, k.Radius())
	out := NewGrid(g.Width, g.Height)

	start := time.Now()
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			var sum float32
			for ky := 0; ky < size; ky++ {
				window := padded.Data[(row+ky)*padded.Width+col:]
				weights := k.Weights[ky*size : (ky+1)*size]
				for kx, w := range weights {
					sum += window[kx] * w
				}
			}
			out.Data[row*out.Width+col] = sum
		}
	}
	elapsed := time.Since(start)

	logrus.Debugf("Exited ConvolveReference after %v", elapsed)
	return out, elapsed, nil
}
