package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lst-tools/bandio"
	"lst-tools/cellsio"
	"lst-tools/indices"
)

var seriesName = regexp.MustCompile(`^modis_lst_mean_(\d{4})\.tif$`)

// timeseriesCmd represents the timeseries command
var timeseriesCmd = &cobra.Command{
	Use:   "timeseries [dir] [output.csv]",
	Short: "Summarise yearly LST rasters",
	Long: `Compute the mean, min and max of every modis_lst_mean_<year>.tif in a
	directory and write them as a CSV sorted by year. Zero pixels count as
	no data.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := collectSeries(args[0])
		if err != nil {
			return err
		}
		for _, r := range rows {
			printer.Fprintf(cmd.OutOrStdout(), "%d  mean %.2f  min %.2f  max %.2f  %d px\n", r.Year, r.Mean, r.Min, r.Max, r.Count)
		}
		return cellsio.WriteSeriesCSV(rows, args[1])
	},
}

func collectSeries(dir string) ([]cellsio.SeriesRow, error) {
	logrus.Debug("Entered collectSeries")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var rows []cellsio.SeriesRow
	for _, e := range entries {
		m := seriesName.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])

		band, err := bandio.ReadBand(filepath.Join(dir, e.Name()), 1)
		if err != nil {
			return nil, err
		}
		mean, min, max, n := indices.SeriesStats(indices.MaskEqual(band.Grid, 0))
		logrus.Infof("%s: %d finite pixels", e.Name(), n)
		rows = append(rows, cellsio.SeriesRow{Year: year, Mean: mean, Min: min, Max: max, Count: n})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no modis_lst_mean_<year>.tif files in %s", dir)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })
	logrus.Debug("Exited collectSeries")
	return rows, nil
}

func init() {
	rootCmd.AddCommand(timeseriesCmd)
}
