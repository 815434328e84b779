package report

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/frequency-response/internal/response"
)

// Render writes a Bode chart of records to path. A .png file gets the raster
// chart, .svg and .pdf files a gonum/plot vector plot.
func Render(path string, records []response.Record) (err error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "png", "svg", "pdf":
	default:
		return fmt.Errorf("unsupported chart format %q", filepath.Ext(path))
	}
	if len(records) == 0 {
		return ErrNoRecords
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if ext != "png" {
		return WritePlot(out, ext, PlotConfig{Title: "Frequency response"}, records)
	}

	chart, err := NewChart(ChartConfig{})
	if err != nil {
		return fmt.Errorf("creating chart: %w", err)
	}
	img, err := chart.Render(records)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return png.Encode(out, img)
}
