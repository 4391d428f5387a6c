package blur

import (
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/cpu"
)

// cpuExecutor lowers the convolution to im2col: each output row is expanded
// into a (width x K*K) patch matrix which is multiplied by the flattened
// kernel. Rows are split across workers.
type cpuExecutor struct {
	workers int
	grid    Grid
	kernel  Kernel
	out     Grid
}

func newCPUExecutor(workers int) *cpuExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logrus.Infof("Using %s with %d workers (%s)", GeneralPurpose, workers, cpuFeatures())
	return &cpuExecutor{workers: workers}
}

func (e *cpuExecutor) prepare(g Grid, k Kernel) error {
	e.grid = g.Clone()
	e.kernel = k
	e.out = NewGrid(g.Width, g.Height)
	return nil
}

func (e *cpuExecutor) run() error {
	padded := padEdge(e.grid, e.kernel.Radius())

	workers := e.workers
	if workers > e.grid.Height {
		workers = e.grid.Height
	}
	rowsPerWorker := (e.grid.Height + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		first := w * rowsPerWorker
		last := min(first+rowsPerWorker, e.grid.Height)
		go func() {
			defer wg.Done()
			e.convolveRows(padded, first, last)
		}()
	}
	wg.Wait()
	return nil
}

func (e *cpuExecutor) convolveRows(padded Grid, first, last int) {
	size := e.kernel.Size
	taps := size * size
	width := e.grid.Width
	cols := make([]float32, width*taps)

	for row := first; row < last; row++ {
		im2colRow(padded, row, width, size, cols)
		dst := e.out.Data[row*width : (row+1)*width]
		for col := range dst {
			patch := cols[col*taps : (col+1)*taps]
			var sum float32
			for t, w := range e.kernel.Weights {
				sum += patch[t] * w
			}
			dst[col] = sum
		}
	}
}

// im2colRow writes, for every output column of row, the K x K window of
// padded starting at (row, col) into cols[col*K*K:].
func im2colRow(padded Grid, row, width, size int, cols []float32) {
	taps := size * size
	for col := 0; col < width; col++ {
		patch := cols[col*taps : (col+1)*taps]
		for ky := 0; ky < size; ky++ {
			src := padded.Data[(row+ky)*padded.Width+col : (row+ky)*padded.Width+col+size]
			copy(patch[ky*size:(ky+1)*size], src)
		}
	}
}

// synchronize is a no-op: run joins its workers before returning.
func (e *cpuExecutor) synchronize() error { return nil }

func (e *cpuExecutor) result() (Grid, error) {
	return e.out.Clone(), nil
}

func (e *cpuExecutor) release() {
	e.grid, e.out = Grid{}, Grid{}
}

func cpuFeatures() string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX2 {
			feats = append(feats, "avx2")
		}
		if cpu.X86.HasFMA {
			feats = append(feats, "fma")
		}
		if cpu.X86.HasAVX512F {
			feats = append(feats, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			feats = append(feats, "fphp")
		}
	}
	if len(feats) == 0 {
		return runtime.GOARCH
	}
	return runtime.GOARCH + "+" + strings.Join(feats, ",")
}
