// Package job turns a benchmark request into a report. It is shared by the
// benchmark command and the dashboard server.
package job

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"lst-tools/bandio"
	"lst-tools/blur"
)

const (
	DefaultBand   = 1
	DefaultWidth  = 256
	DefaultHeight = 256
	DefaultSeed   = 42
	DefaultSize   = 11
	DefaultSigma  = 2.0
	SyntheticName = "synthetic"
)

// Request describes one benchmark. Without a Path a synthetic grid of
// Width x Height is generated from Seed.
type Request struct {
	Path   string  `json:"path"`
	Band   int     `json:"band"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Seed   int64   `json:"seed"`
	Size   int     `json:"size"`
	Sigma  float64 `json:"sigma"`
	Device string  `json:"device"`
}

// DefaultRequest returns a request with every field at its default. Decode
// JSON over it so that omitted fields keep their defaults while explicit
// zeros, such as seed 0, are kept.
func DefaultRequest() Request {
	return Request{
		Band:   DefaultBand,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Seed:   DefaultSeed,
		Size:   DefaultSize,
		Sigma:  DefaultSigma,
		Device: "auto",
	}
}

// Shape returns the size of the grid r would benchmark, opening the raster
// header when r has a Path.
func (r Request) Shape() (width, height int, err error) {
	if r.Path != "" {
		return bandio.BandSize(r.Path, r.Band)
	}
	return r.Width, r.Height, nil
}

// Report is the JSON document printed and broadcast after a benchmark.
type Report struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	blur.Result
	MaxAbsDiff float64   `json:"max_abs_diff"`
	Input      blur.Grid `json:"-"`
	// Band is the accelerated blur georeferenced like the input.
	Band *bandio.Band `json:"-"`
}

// Run loads the grid described by req and benchmarks it.
func Run(req Request) (Report, error) {
	logrus.Debug("Entered job.Run")
	pref, err := blur.ParsePreference(req.Device)
	if err != nil {
		return Report{}, err
	}

	band, source, err := load(req)
	if err != nil {
		return Report{}, err
	}
	logrus.Infof("Benchmarking %s (%dx%d), size %d, sigma %v", source, band.Grid.Width, band.Grid.Height, req.Size, req.Sigma)

	res, err := blur.RunBenchmark(band.Grid, req.Size, req.Sigma, blur.WithDevice(pref))
	if err != nil {
		return Report{}, err
	}
	diff, _ := blur.MaxAbsDiff(res.Reference, res.Accelerated)

	logrus.Debug("Exited job.Run")
	return Report{
		Source:     source,
		Width:      band.Grid.Width,
		Height:     band.Grid.Height,
		Result:     res,
		MaxAbsDiff: diff,
		Input:      band.Grid,
		Band:       band.WithGrid(res.Accelerated),
	}, nil
}

func load(req Request) (*bandio.Band, string, error) {
	if req.Path != "" {
		band, err := bandio.ReadBand(req.Path, req.Band)
		if err != nil {
			return nil, "", err
		}
		return band, req.Path, nil
	}
	grid, err := SyntheticGrid(req.Width, req.Height, req.Seed)
	if err != nil {
		return nil, "", err
	}
	return &bandio.Band{
		Grid:         grid,
		GeoTransform: [6]float64{0, 1, 0, 0, 0, -1},
	}, SyntheticName, nil
}

// SyntheticGrid returns a width x height grid of values uniform in [0, 40).
func SyntheticGrid(width, height int, seed int64) (blur.Grid, error) {
	if err := blur.ValidateShape(width, height); err != nil {
		return blur.Grid{}, err
	}
	g := blur.NewGrid(width, height)
	rng := rand.New(rand.NewSource(seed))
	for i := range g.Data {
		g.Data[i] = rng.Float32() * 40
	}
	return g, nil
}
