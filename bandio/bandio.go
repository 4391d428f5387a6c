package bandio

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"

	"lst-tools/blur"
)

type Point struct {
	Lat float64
	Lng float64
}

// Band is one raster band in memory together with its georeferencing.
// No-data samples have already been replaced by NaN in Grid.
type Band struct {
	Grid         blur.Grid
	NoData       float64
	HasNoData    bool
	GeoTransform [6]float64
	Projection   string
}

// Origin is the top-left corner of the raster.
func (b *Band) Origin() Point {
	return Point{Lat: b.GeoTransform[3], Lng: b.GeoTransform[0]}
}

// Resolution returns the pixel size along x and y. y is negative for north-up
// rasters.
func (b *Band) Resolution() (float64, float64) {
	return b.GeoTransform[1], b.GeoTransform[5]
}

// WithGrid returns a copy of b carrying g instead of its own grid.
func (b *Band) WithGrid(g blur.Grid) *Band {
	out := *b
	out.Grid = g
	return &out
}

type bandContainer struct {
	band *godal.Band
	grid blur.Grid
	mu   sync.Mutex
}

// ReadBand reads the 1-based band index of the raster at path.
func ReadBand(path string, index int) (band *Band, err error) {
	godal.RegisterAll()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, ds.Close())
	}()

	bands := ds.Bands()
	if index < 1 || index > len(bands) {
		return nil, fmt.Errorf("band %d out of range, %s has %d band(s)", index, path, len(bands))
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		logrus.Warnf("No geotransform for %s: %v", path, err)
		gt = [6]float64{0, 1, 0, 0, 0, -1}
	}

	b := &bands[index-1]
	struc := b.Structure()
	container := &bandContainer{band: b, grid: blur.NewGrid(struc.SizeX, struc.SizeY)}
	if err := readBlocks(container); err != nil {
		return nil, err
	}

	noData, ok := b.NoData()
	if !ok {
		logrus.Warn("NoData not set")
	} else {
		maskNoData(container.grid, noData)
	}

	return &Band{
		Grid:         container.grid,
		NoData:       noData,
		HasNoData:    ok,
		GeoTransform: gt,
		Projection:   ds.Projection(),
	}, nil
}

// BandSize returns the dimensions of the 1-based band index of the raster at
// path without reading any samples.
func BandSize(path string, index int) (width, height int, err error) {
	godal.RegisterAll()

	ds, err := godal.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		err = errors.Join(err, ds.Close())
	}()

	bands := ds.Bands()
	if index < 1 || index > len(bands) {
		return 0, 0, fmt.Errorf("band %d out of range, %s has %d band(s)", index, path, len(bands))
	}
	struc := bands[index-1].Structure()
	return struc.SizeX, struc.SizeY, nil
}

// readBlocks fans the band's natural blocks out to a small pool of readers.
func readBlocks(c *bandContainer) error {
	logrus.Debug("Entered readBlocks")
	done := make(chan struct{})
	defer close(done)

	blocks := genBlocks(c.band, done)
	numWorkers := min(runtime.NumCPU(), 4)

	var wg sync.WaitGroup
	errCh := make(chan error, numWorkers)
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for block := range blocks {
				logrus.Infof("Reading block at [%v, %v]", block.X0, block.Y0)
				if err := lockedRead(c, block); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	logrus.Debug("Exited readBlocks")
	return <-errCh
}

func genBlocks(band *godal.Band, done <-chan struct{}) <-chan godal.Block {
	blocks := make(chan godal.Block)
	firstBlock := band.Structure().FirstBlock()
	go func() {
		defer close(blocks)
		for block, ok := firstBlock, true; ok; block, ok = block.Next() {
			select {
			case blocks <- block:
			case <-done:
				return
			}
		}
	}()
	return blocks
}

// Locking is required to read from compressed rasters.
func lockedRead(c *bandContainer, block godal.Block) error {
	buf := make([]float32, block.W*block.H)
	c.mu.Lock()
	err := c.band.Read(block.X0, block.Y0, buf, block.W, block.H)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	// GDAL is row-major
	for row := 0; row < block.H; row++ {
		dst := c.grid.Data[(block.Y0+row)*c.grid.Width+block.X0:]
		copy(dst[:block.W], buf[row*block.W:(row+1)*block.W])
	}
	return nil
}

func maskNoData(g blur.Grid, noData float64) {
	if math.IsNaN(noData) {
		return
	}
	sentinel := float32(noData)
	nan := float32(math.NaN())
	for i, v := range g.Data {
		if v == sentinel {
			g.Data[i] = nan
		}
	}
}

// WriteGeoTIFF writes band as a single-band tiled Float32 GeoTIFF. NaN cells
// are written as the band's no-data value when it has one.
func WriteGeoTIFF(path string, band *Band) (err error) {
	godal.RegisterAll()
	g := band.Grid
	if err := g.Validate(); err != nil {
		return err
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, g.Width, g.Height,
		godal.CreationOption("TILED=YES", "BLOCKXSIZE=256", "BLOCKYSIZE=256", "COMPRESS=DEFLATE"))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ds.Close())
	}()

	if err := ds.SetGeoTransform(band.GeoTransform); err != nil {
		return err
	}
	if band.Projection != "" {
		if err := ds.SetProjection(band.Projection); err != nil {
			return err
		}
	}

	noData := math.NaN()
	if band.HasNoData {
		noData = band.NoData
	}
	out := ds.Bands()[0]
	if err := out.SetNoData(noData); err != nil {
		return err
	}

	buf := make([]float32, len(g.Data))
	copy(buf, g.Data)
	if band.HasNoData {
		for i, v := range buf {
			if math.IsNaN(float64(v)) {
				buf[i] = float32(noData)
			}
		}
	}
	return out.Write(0, 0, buf, g.Width, g.Height)
}
