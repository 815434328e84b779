package report

import (
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/roman-kulish/frequency-response/internal/response"
)

// PlotConfig holds the page size and title of a vector Bode plot.
type PlotConfig struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// hzTicks labels logarithmic ticks with SI frequencies.
type hzTicks struct{}

func (hzTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.LogTicks{Prec: -1}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = humanize.SIWithDigits(ticks[i].Value, 0, "Hz")
		}
	}
	return ticks
}

// WritePlot renders gain and time panels with gonum/plot in the given format
// (svg, pdf, png, ...).
func WritePlot(w io.Writer, format string, config PlotConfig, records []response.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if config.Width == 0 {
		config.Width = 20 * vg.Centimeter
	}
	if config.Height == 0 {
		config.Height = 16 * vg.Centimeter
	}

	unit := records[0].Unit
	gain, err := newPanel(records, func(r response.Record) float64 { return r.GainDB }, "Gain (dB)", gainColor)
	if err != nil {
		return fmt.Errorf("creating gain panel: %w", err)
	}
	gain.Title.Text = config.Title

	timing, err := newPanel(records, func(r response.Record) float64 { return r.Time },
		fmt.Sprintf("%s (%s)", unit, unit.Unit()), phaseColor)
	if err != nil {
		return fmt.Errorf("creating %s panel: %w", unit, err)
	}
	timing.X.Label.Text = "Frequency"

	c, err := draw.NewFormattedCanvas(config.Width, config.Height, strings.ToLower(format))
	if err != nil {
		return fmt.Errorf("creating %s canvas: %w", format, err)
	}

	plots := [][]*plot.Plot{{gain}, {timing}}
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Centimeter, PadTop: vg.Millimeter * 5, PadBottom: vg.Millimeter * 5, PadLeft: vg.Millimeter * 5, PadRight: vg.Millimeter * 5}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	if _, err = c.WriteTo(w); err != nil {
		return fmt.Errorf("writing %s plot: %w", format, err)
	}
	return nil
}

func newPanel(records []response.Record, value func(response.Record) float64, label string, c color.Color) (*plot.Plot, error) {
	fx := newFrequencyAxis(records, 0, 0)

	p := plot.New()
	p.Y.Label.Text = label
	p.X.Min, p.X.Max = fx.min, fx.max
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = hzTicks{}
	p.Add(plotter.NewGrid())

	// gaps split the trace the same way the raster chart does
	var segment plotter.XYs
	flush := func() error {
		if len(segment) == 0 {
			return nil
		}
		line, err := plotter.NewLine(segment)
		if err != nil {
			return err
		}
		line.Color = c
		line.Width = vg.Points(1.5)
		p.Add(line)

		if len(segment) == 1 {
			points, err := plotter.NewScatter(segment)
			if err != nil {
				return err
			}
			points.Color = c
			p.Add(points)
		}
		segment = nil
		return nil
	}

	for _, r := range records {
		v := value(r)
		if !isFinite(v) || r.Frequency <= 0 {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		segment = append(segment, plotter.XY{X: r.Frequency, Y: v})
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return p, nil
}
