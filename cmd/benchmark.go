package cmd

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lst-tools/bandio"
	"lst-tools/cellsio"
	"lst-tools/job"
	"lst-tools/preview"
)

// benchmarkCmd represents the benchmark command
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark [raster]",
	Short: "Blur a raster with the reference and accelerated strategies and time both",
	Long: `Blur one band of a GeoTIFF with a normalised Gaussian kernel, first with
	the reference windowed convolution and then with the accelerated one, and
	report both timings and the device used.

	Without a raster a synthetic grid of uniform values in [0, 40) is used.

	Options:
		--device:  auto picks the GPU when one is present. gpu fails without one.
		--out:     GeoTIFF of the accelerated blur.
		--preview: PNG with the input and the blur side by side.
		--summary: parquet table the result is appended to.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := job.Request{
			Band:   viper.GetInt("band"),
			Width:  viper.GetInt("width"),
			Height: viper.GetInt("height"),
			Seed:   viper.GetInt64("seed"),
			Size:   viper.GetInt("size"),
			Sigma:  viper.GetFloat64("sigma"),
			Device: viper.GetString("device"),
		}
		if len(args) == 1 {
			req.Path = args[0]
		}

		rep, err := job.Run(req)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), rep)
		if viper.GetBool("json") {
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(rep); err != nil {
				return err
			}
		}
		return writeBenchmarkOutputs(rep)
	},
}

func writeBenchmarkOutputs(rep job.Report) error {
	if out := viper.GetString("out"); out != "" {
		logrus.Infof("Writing blurred raster to %s", out)
		if err := bandio.WriteGeoTIFF(out, rep.Band); err != nil {
			return err
		}
	}
	if path := viper.GetString("preview"); path != "" {
		logrus.Infof("Writing preview to %s", path)
		img := preview.BeforeAfter(rep.Input, rep.Accelerated, viper.GetInt("scale"))
		if err := preview.WritePNG(path, img); err != nil {
			return err
		}
	}
	if path := viper.GetString("summary"); path != "" {
		logrus.Infof("Appending summary to %s", path)
		row := cellsio.NewBenchmarkRow(rep.Source, rep.Result)
		if err := cellsio.WriteBenchmarkParquet([]cellsio.BenchmarkRow{row}, path); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	f := benchmarkCmd.Flags()
	f.IntP("band", "b", job.DefaultBand, "1-based band index of the raster")
	f.Int("width", job.DefaultWidth, "Width of the synthetic grid")
	f.Int("height", job.DefaultHeight, "Height of the synthetic grid")
	f.Int64("seed", job.DefaultSeed, "Seed of the synthetic grid")
	f.IntP("size", "k", job.DefaultSize, "Kernel size, odd")
	f.Float64P("sigma", "s", job.DefaultSigma, "Kernel standard deviation in pixels")
	f.String("device", "auto", "Device for the accelerated strategy: auto, gpu or cpu")
	f.StringP("out", "o", "", "GeoTIFF to write the accelerated blur to")
	f.String("preview", "", "PNG to write a before/after preview to")
	f.Int("scale", 2, "Preview upscaling factor")
	f.String("summary", "", "Parquet summary table to append the result to")
	f.Bool("json", false, "Also print the report as JSON")
}
