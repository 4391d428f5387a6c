package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lst-tools/dashboard"
	"lst-tools/job"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run benchmarks over HTTP and stream reports to a dashboard",
	Long: `Serve POST /benchmark, which takes a JSON request
	{"path", "band", "width", "height", "seed", "size", "sigma", "device"}
	and answers with the report, and GET /ws, a websocket receiving every
	completed report.

	Options:
		--addr:     listens on localhost only unless given another host.
		--dataDir:  directory request paths are resolved under. Without it
		            only synthetic grids are served.
		--maxCells: largest width x height a request may benchmark.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := dashboard.Config{MaxCells: viper.GetInt("maxCells")}
		if dir := viper.GetString("dataDir"); dir != "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			cfg.DataDir = abs
		}
		srv := dashboard.NewServer(job.Run, cfg)
		err := srv.ListenAndServe(ctx, viper.GetString("addr"))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", "localhost:8080", "Address to listen on")
	f.String("dataDir", "", "Directory raster paths in requests are resolved under")
	f.Int("maxCells", dashboard.DefaultMaxCells, "Largest grid, in cells, a request may benchmark")
}
