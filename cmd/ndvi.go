package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lst-tools/bandio"
	"lst-tools/indices"
)

// ndviCmd represents the ndvi command
var ndviCmd = &cobra.Command{
	Use:   "ndvi [sentinel.tif] [output.tif]",
	Short: "Compute NDVI from a Sentinel-2 mosaic",
	Long: `Compute (NIR - RED) / (NIR + RED) from two bands of a mosaic and write
	it as a GeoTIFF. With --lst, also report the Pearson correlation between
	an LST raster of the same shape and the NDVI.

	Options:
		--red, --nir: 1-based band indices.
		--lst:        LST raster to correlate against.
		--maskAbove:  Ignore LST values above this limit. 0 disables the mask.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		red, err := bandio.ReadBand(args[0], viper.GetInt("red"))
		if err != nil {
			return err
		}
		nir, err := bandio.ReadBand(args[0], viper.GetInt("nir"))
		if err != nil {
			return err
		}
		ndvi, err := indices.NDVI(red.Grid, nir.Grid)
		if err != nil {
			return err
		}
		if err := bandio.WriteGeoTIFF(args[1], red.WithGrid(ndvi)); err != nil {
			return err
		}
		logrus.Infof("Wrote NDVI to %s", args[1])

		lstPath := viper.GetString("lst")
		if lstPath == "" {
			return nil
		}
		lst, err := bandio.ReadBand(lstPath, 1)
		if err != nil {
			return err
		}
		lstGrid := lst.Grid
		if limit := viper.GetFloat64("maskAbove"); limit != 0 {
			lstGrid = indices.Threshold(lstGrid, float32(limit))
		}
		r, n, err := indices.Pearson(lstGrid, ndvi)
		if err != nil {
			return err
		}
		printer.Fprintf(cmd.OutOrStdout(), "Pearson r (LST vs NDVI): %.4f over %d pixels\n", r, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ndviCmd)

	f := ndviCmd.Flags()
	f.Int("red", 1, "Band index of the red band")
	f.Int("nir", 2, "Band index of the near-infrared band")
	f.String("lst", "", "LST raster of the same shape to correlate with")
	f.Float64("maskAbove", 0, "Ignore LST values above this limit, 0 disables")
}
