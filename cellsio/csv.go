package cellsio

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"lst-tools/celltools"
)

// SeriesRow is the yearly summary of one LST raster.
type SeriesRow struct {
	Year  int
	Mean  float64
	Min   float64
	Max   float64
	Count int
}

func WriteStatsCSV(stats []celltools.CellStats, path string) error {
	lines := make([]string, len(stats))
	for i, s := range stats {
		lines[i] = fmt.Sprintf("%d,%v,%v,%v,%v,%d,%v,%v,\"%s\"",
			int64(s.Cell), s.Value, s.Mean, s.Min, s.Max, s.Count, s.PixelArea, s.CellArea, s.Geom)
	}
	return writeLines(path, "s2_id,value,mean,min,max,count,pixel_area_m2,cell_area_m2,geom", lines)
}

func WriteSeriesCSV(rows []SeriesRow, path string) error {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%d,%v,%v,%v,%d", r.Year, r.Mean, r.Min, r.Max, r.Count)
	}
	return writeLines(path, "year,mean_lst,min_lst,max_lst,pixels", lines)
}

func writeLines(path, header string, lines []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if _, err := f.WriteString(header + "\n"); err != nil {
		return err
	}

	for i, line := range lines {
		if i%10000 == 0 {
			logrus.Infof("Writing row %d", i)
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return f.Sync()
}
