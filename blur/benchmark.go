package blur

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of one benchmark call. The grids are owned by the
// result and are not shared with the input.
type Result struct {
	ReferenceTime   time.Duration `json:"-"`
	AcceleratedTime time.Duration `json:"-"`
	ReferenceSec    float64       `json:"numpy_time_sec"`
	AcceleratedSec  float64       `json:"torch_time_sec"`
	Device          Device        `json:"torch_device"`
	Reference       Grid          `json:"-"`
	Accelerated     Grid          `json:"-"`
	KernelSize      int           `json:"kernel_size"`
	Sigma           float64       `json:"sigma"`
}

// RunBenchmark builds the Gaussian kernel, then blurs grid with the reference
// strategy followed by the accelerated one. Any failure aborts the call and
// no partial result is returned.
func RunBenchmark(grid Grid, kernelSize int, sigma float64, opts ...Option) (Result, error) {
	logrus.Debug("Entered RunBenchmark")
	kernel, err := GaussianKernel(kernelSize, sigma)
	if err != nil {
		return Result{}, err
	}
	if err := grid.Validate(); err != nil {
		return Result{}, err
	}

	refOut, refTime, err := ConvolveReference(grid.Clone(), kernel)
	if err != nil {
		return Result{}, err
	}
	accOut, accTime, dev, err := ConvolveAccelerated(grid.Clone(), kernel, opts...)
	if err != nil {
		return Result{}, err
	}

	logrus.Infof("Reference %v, %s %v (kernel %d, sigma %v)", refTime, dev, accTime, kernelSize, sigma)
	logrus.Debug("Exited RunBenchmark")
	return Result{
		ReferenceTime:   refTime,
		AcceleratedTime: accTime,
		ReferenceSec:    refTime.Seconds(),
		AcceleratedSec:  accTime.Seconds(),
		Device:          dev,
		Reference:       refOut,
		Accelerated:     accOut,
		KernelSize:      kernelSize,
		Sigma:           sigma,
	}, nil
}
