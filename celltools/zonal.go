package celltools

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/s2"
	"github.com/sirupsen/logrus"

	"lst-tools/bandio"
)

const EarthRadius = 6371000

const defaultStripRows = 64

// ConfigOpts controls how a band is indexed into S2 zones.
type ConfigOpts struct {
	NumWorkers int
	S2Lvl      int
	// AggFunc fills CellStats.Value. Mean when nil.
	AggFunc AggFunc
	// CellArea adds the reprojected polygon area of every cell. It needs a
	// GDAL build with PROJ data.
	CellArea  bool
	StripRows int
}

// CellStats summarises the finite pixels whose centres fall in one S2 cell.
type CellStats struct {
	Cell      s2.CellID
	Value     float64
	Mean      float64
	Min       float64
	Max       float64
	Count     int
	PixelArea float64
	CellArea  float64
	Geom      string
}

type strip struct {
	y0, rows int
}

type cellValues struct {
	values []float64
	area   float64
}

// ZonalStats groups the pixels of a geographic (lat/lng) band by S2 cell and
// aggregates each group. Results are sorted by cell ID.
func ZonalStats(band *bandio.Band, opts ConfigOpts) ([]CellStats, error) {
	logrus.Debug("Entered ZonalStats")
	if band == nil {
		return nil, errors.New("nil band")
	}
	if err := band.Grid.Validate(); err != nil {
		return nil, err
	}
	if opts.S2Lvl < 0 || opts.S2Lvl > s2.MaxLevel {
		return nil, fmt.Errorf("s2 level %d outside [0, %d]", opts.S2Lvl, s2.MaxLevel)
	}
	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	if opts.StripRows < 1 {
		opts.StripRows = defaultStripRows
	}
	if opts.AggFunc == nil {
		opts.AggFunc = Mean
	}

	done := make(chan struct{})
	defer close(done)

	strips := genStrips(band.Grid.Height, opts.StripRows, done)
	resCh := processStrips(band, strips, opts)
	resMap := groupByCell(resCh)

	stats, err := aggCellResults(resMap, opts)
	if err != nil {
		return nil, err
	}
	logrus.Debug("Exited ZonalStats")
	return stats, nil
}

func genStrips(height, rows int, done <-chan struct{}) <-chan strip {
	logrus.Debug("Entered genStrips")
	strips := make(chan strip)
	go func() {
		defer close(strips)
		for y0 := 0; y0 < height; y0 += rows {
			s := strip{y0: y0, rows: min(rows, height-y0)}
			select {
			case strips <- s:
			case <-done:
				return
			}
		}
	}()
	logrus.Debug("Exited genStrips")
	return strips
}

func processStrips(band *bandio.Band, strips <-chan strip, opts ConfigOpts) <-chan map[s2.CellID]*cellValues {
	logrus.Debug("Entered processStrips")
	resCh := make(chan map[s2.CellID]*cellValues, opts.NumWorkers)
	var wg sync.WaitGroup

	wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go func() {
			defer wg.Done()
			for s := range strips {
				logrus.Infof("Processing rows [%d, %d)", s.y0, s.y0+s.rows)
				resCh <- indexStrip(band, s, opts.S2Lvl)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resCh)
	}()

	logrus.Debug("Exited processStrips")
	return resCh
}

func indexStrip(band *bandio.Band, s strip, level int) map[s2.CellID]*cellValues {
	origin := band.Origin()
	xRes, yRes := band.Resolution()
	g := band.Grid

	out := make(map[s2.CellID]*cellValues)
	for row := s.y0; row < s.y0+s.rows; row++ {
		lat := origin.Lat + (float64(row)+0.5)*yRes
		pixArea := pixelArea(lat, xRes, yRes)
		for col := 0; col < g.Width; col++ {
			value := float64(g.At(row, col))
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			lng := origin.Lng + (float64(col)+0.5)*xRes
			cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(level)

			cv, ok := out[cell]
			if !ok {
				cv = &cellValues{}
				out[cell] = cv
			}
			cv.values = append(cv.values, value)
			cv.area += pixArea
		}
	}
	return out
}

func groupByCell(resCh <-chan map[s2.CellID]*cellValues) map[s2.CellID]*cellValues {
	logrus.Debug("Entered groupByCell")
	outMap := make(map[s2.CellID]*cellValues)
	for partial := range resCh {
		for cell, cv := range partial {
			if existing, ok := outMap[cell]; ok {
				existing.values = append(existing.values, cv.values...)
				existing.area += cv.area
			} else {
				outMap[cell] = cv
			}
		}
	}
	logrus.Debug("Exited groupByCell")
	return outMap
}

func aggCellResults(resMap map[s2.CellID]*cellValues, opts ConfigOpts) ([]CellStats, error) {
	logrus.Debug("Entered aggCellResults")
	aggResults := make([]CellStats, 0, len(resMap))
	for cell, cv := range resMap {
		stats, err := aggToS2Cell(cell, cv, opts)
		if err != nil {
			return nil, err
		}
		aggResults = append(aggResults, stats)
	}
	sort.Slice(aggResults, func(i, j int) bool { return aggResults[i].Cell < aggResults[j].Cell })
	logrus.Debug("Exited aggCellResults")
	return aggResults, nil
}

func aggToS2Cell(cell s2.CellID, cv *cellValues, opts ConfigOpts) (CellStats, error) {
	// Strips arrive in any order; sorting keeps the sums reproducible.
	sort.Float64s(cv.values)
	stats := CellStats{
		Cell:      cell,
		Value:     opts.AggFunc(cv.values...),
		Mean:      Mean(cv.values...),
		Min:       Min(cv.values...),
		Max:       Max(cv.values...),
		Count:     len(cv.values),
		PixelArea: cv.area,
		Geom:      cellToWKT(s2.CellFromCellID(cell)),
	}
	if opts.CellArea {
		area, err := CellArea(cell)
		if err != nil {
			return CellStats{}, fmt.Errorf("area of cell %v: %w", cell, err)
		}
		stats.CellArea = area
	}
	return stats, nil
}

type RankBy int

const (
	// ByArea ranks zones by the area their pixels cover.
	ByArea RankBy = iota
	// ByMean ranks zones by mean value.
	ByMean
)

// TopN returns the n highest ranked zones, leaving stats untouched.
func TopN(stats []CellStats, n int, by RankBy) []CellStats {
	ranked := make([]CellStats, len(stats))
	copy(ranked, stats)
	key := func(s CellStats) float64 {
		if by == ByMean {
			return s.Mean
		}
		return s.PixelArea
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := key(ranked[i]), key(ranked[j])
		if ki != kj {
			return ki > kj
		}
		return ranked[i].Cell < ranked[j].Cell
	})
	if n < 0 {
		n = 0
	}
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

func pixelArea(latitude float64, xRes, yRes float64) float64 {
	pixWidth := haversinePixelWidth(latitude, math.Abs(xRes))
	pixHeight := (math.Pi / 180) * math.Abs(yRes) * EarthRadius
	return pixWidth * pixHeight
}

func haversinePixelWidth(latitude float64, resolution float64) float64 {
	latRad := latitude * math.Pi / 180
	resRad := resolution * math.Pi / 180
	a := math.Pow(math.Cos(latRad), 2) * math.Pow(math.Sin(resRad/2), 2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(a))
}
