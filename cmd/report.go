package cmd

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"lst-tools/celltools"
	"lst-tools/job"
)

var printer = message.NewPrinter(language.English)

func printReport(w io.Writer, rep job.Report) {
	printer.Fprintf(w, "Source:       %s (%d x %d, %d cells)\n", rep.Source, rep.Width, rep.Height, rep.Width*rep.Height)
	printer.Fprintf(w, "Kernel:       %d x %d, sigma %.2f\n", rep.KernelSize, rep.KernelSize, rep.Sigma)
	printer.Fprintf(w, "Reference:    %.6f s\n", rep.ReferenceSec)
	printer.Fprintf(w, "Accelerated:  %.6f s on %s\n", rep.AcceleratedSec, rep.Device)
	if rep.AcceleratedSec > 0 {
		printer.Fprintf(w, "Speed-up:     %.2fx\n", rep.ReferenceSec/rep.AcceleratedSec)
	}
	printer.Fprintf(w, "Max |A - B|:  %.3g\n", rep.MaxAbsDiff)
}

func printZones(w io.Writer, title string, stats []celltools.CellStats) {
	printer.Fprintf(w, "%s\n", title)
	for i, s := range stats {
		printer.Fprintf(w, "%3d  %d  mean %.2f  min %.2f  max %.2f  %d px  %.0f m²\n",
			i+1, int64(s.Cell), s.Mean, s.Min, s.Max, s.Count, s.PixelArea)
	}
}
