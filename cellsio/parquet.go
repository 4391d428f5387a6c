package cellsio

import (
	"errors"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"lst-tools/blur"
	"lst-tools/celltools"
)

// Rows are written and flushed in groups of this size so the writer never
// buffers a whole raster's worth of cells.
const rowBufferSize = 10000

type CellRow struct {
	S2id      int64   `parquet:"s2_id"`
	Value     float64 `parquet:"value"`
	Mean      float64 `parquet:"mean"`
	Min       float64 `parquet:"min"`
	Max       float64 `parquet:"max"`
	Count     int64   `parquet:"count"`
	PixelArea float64 `parquet:"pixel_area_m2"`
	CellArea  float64 `parquet:"cell_area_m2"`
	Geom      string  `parquet:"geom"`
}

// BenchmarkRow is one line of the benchmark summary table.
type BenchmarkRow struct {
	Source         string  `parquet:"source"`
	Width          int64   `parquet:"width"`
	Height         int64   `parquet:"height"`
	KernelSize     int64   `parquet:"kernel_size"`
	Sigma          float64 `parquet:"sigma"`
	ReferenceSec   float64 `parquet:"reference_sec"`
	AcceleratedSec float64 `parquet:"accelerated_sec"`
	Device         string  `parquet:"device"`
	MaxAbsDiff     float64 `parquet:"max_abs_diff"`
}

func NewBenchmarkRow(source string, res blur.Result) BenchmarkRow {
	diff, _ := blur.MaxAbsDiff(res.Reference, res.Accelerated)
	return BenchmarkRow{
		Source:         source,
		Width:          int64(res.Reference.Width),
		Height:         int64(res.Reference.Height),
		KernelSize:     int64(res.KernelSize),
		Sigma:          res.Sigma,
		ReferenceSec:   res.ReferenceSec,
		AcceleratedSec: res.AcceleratedSec,
		Device:         res.Device.String(),
		MaxAbsDiff:     diff,
	}
}

func toCellRow(s celltools.CellStats) CellRow {
	return CellRow{
		S2id:      int64(s.Cell),
		Value:     s.Value,
		Mean:      s.Mean,
		Min:       s.Min,
		Max:       s.Max,
		Count:     int64(s.Count),
		PixelArea: s.PixelArea,
		CellArea:  s.CellArea,
		Geom:      s.Geom,
	}
}

func WriteStatsParquet(stats []celltools.CellStats, path string) error {
	rows := make([]CellRow, len(stats))
	for i, s := range stats {
		rows[i] = toCellRow(s)
	}
	return writeParquet(rows, path)
}

// WriteBenchmarkParquet appends rows to the summary table at path, creating it
// when it does not exist yet.
func WriteBenchmarkParquet(rows []BenchmarkRow, path string) error {
	if _, err := os.Stat(path); err == nil {
		existing, err := parquet.ReadFile[BenchmarkRow](path)
		if err != nil {
			return fmt.Errorf("reading existing summary %s: %w", path, err)
		}
		logrus.Infof("Appending %d rows to %d in %s", len(rows), len(existing), path)
		rows = append(existing, rows...)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeParquet(rows, path)
}

func writeParquet[T any](rows []T, path string) (err error) {
	logrus.Debug("Entered writeParquet")
	output, err := os.Create(path)
	if err != nil {
		return err
	}

	schema := parquet.SchemaOf(new(T))
	writer := parquet.NewGenericWriter[T](output, schema, parquet.Compression(&parquet.Snappy))
	defer func() {
		err = errors.Join(err, writer.Close(), output.Close())
	}()

	for start := 0; start < len(rows); start += rowBufferSize {
		end := min(start+rowBufferSize, len(rows))
		logrus.Infof("Writing rows %d to %d", start, end)
		if _, err := writer.Write(rows[start:end]); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	logrus.Debug("Exited writeParquet")
	return nil
}
