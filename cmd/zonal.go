package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lst-tools/bandio"
	"lst-tools/blur"
	"lst-tools/cellsio"
	"lst-tools/celltools"
)

// zonalCmd represents the zonal command
var zonalCmd = &cobra.Command{
	Use:   "zonal [raster] [output]",
	Short: "Aggregate a raster into S2 cell zones",
	Long: `Convert a GeoTIFF in geographic coordinates to a table of S2 cell IDs
	with the mean, min, max and pixel count of the raster cells each contains.
	The output format follows the extension: .parquet or .csv.

	Options:
		--numWorkers: Number of workers to spawn for parallel processing. Not recommended
		              to exceed number of CPU cores.
		--s2Lvl:      S2 cell level to generate results for. Essentially output resolution.
		--aggFunc:    Function filling the value column: mean, sum, max, min.
		--blur:       Smooth the band with a Gaussian kernel of --size and --sigma first.
		--top:        Print the N dominant (largest) and hottest zones.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		band, err := bandio.ReadBand(args[0], viper.GetInt("band"))
		if err != nil {
			return err
		}

		if viper.GetBool("blur") {
			if band, err = blurBand(band); err != nil {
				return err
			}
		}

		aggName := viper.GetString("aggFunc")
		aggFunc, ok := celltools.ChooseAggFunc(aggName)
		if !ok {
			logrus.Warnf("Aggregation function %s not recognized, using mean", aggName)
		}

		opts := celltools.ConfigOpts{
			NumWorkers: viper.GetInt("numWorkers"),
			S2Lvl:      viper.GetInt("s2Lvl"),
			AggFunc:    aggFunc,
			CellArea:   viper.GetBool("cellArea"),
		}
		stats, err := celltools.ZonalStats(band, opts)
		if err != nil {
			return err
		}
		logrus.Infof("Aggregated into %d cells", len(stats))

		if err := writeStats(stats, args[1]); err != nil {
			return err
		}

		if n := viper.GetInt("top"); n > 0 {
			out := cmd.OutOrStdout()
			printZones(out, fmt.Sprintf("Top %d dominant zones", n), celltools.TopN(stats, n, celltools.ByArea))
			printZones(out, fmt.Sprintf("Top %d hottest zones", n), celltools.TopN(stats, n, celltools.ByMean))
		}
		return nil
	},
}

func blurBand(band *bandio.Band) (*bandio.Band, error) {
	kernel, err := blur.GaussianKernel(viper.GetInt("size"), viper.GetFloat64("sigma"))
	if err != nil {
		return nil, err
	}
	pref, err := blur.ParsePreference(viper.GetString("device"))
	if err != nil {
		return nil, err
	}
	blurred, elapsed, dev, err := blur.ConvolveAccelerated(band.Grid, kernel, blur.WithDevice(pref))
	if err != nil {
		return nil, err
	}
	logrus.Infof("Blurred on %s in %v", dev, elapsed)
	return band.WithGrid(blurred), nil
}

func writeStats(stats []celltools.CellStats, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return cellsio.WriteStatsParquet(stats, path)
	case ".csv":
		return cellsio.WriteStatsCSV(stats, path)
	default:
		return fmt.Errorf("unsupported output %s, use .parquet or .csv", path)
	}
}

func init() {
	rootCmd.AddCommand(zonalCmd)

	f := zonalCmd.Flags()
	f.IntP("band", "b", 1, "1-based band index of the raster")
	f.IntP("numWorkers", "n", 8, "Number of workers to spawn for parallel processing")
	f.IntP("s2Lvl", "l", 11, "S2 cell level to generate results for. Essentially output resolution")
	f.StringP("aggFunc", "a", "mean", "Function filling the value column: mean, sum, max, min")
	f.Bool("cellArea", false, "Add the UTM area of every cell polygon")
	f.Bool("blur", false, "Smooth the band before aggregating")
	f.IntP("size", "k", 11, "Kernel size used with --blur, odd")
	f.Float64P("sigma", "s", 2.0, "Kernel standard deviation used with --blur")
	f.String("device", "auto", "Device used with --blur: auto, gpu or cpu")
	f.Int("top", 10, "Number of dominant and hottest zones to print, 0 for none")
}
