package report

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/frequency-response/internal/response"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	yTickCount     = 6

	defaultWidth  = 1000
	defaultHeight = 700

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 30
	defaultPanelGap     = 50
)

var (
	ErrNoRecords = errors.New("no records to render")

	gridColor  = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	gainColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	phaseColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// BorderConfig defines the white space around the plot panels
type BorderConfig struct {
	Top    int
	Left   int // Space for value labels
	Bottom int // Space for frequency labels
	Right  int
	Gap    int // Space between gain and time panels
}

// ChartConfig holds the layout of a raster Bode chart. Zero values select
// the defaults.
type ChartConfig struct {
	Width    int
	Height   int
	FontSize float64
	Borders  BorderConfig
}

// Chart renders gain and phase (or delay) panels over a shared logarithmic
// frequency axis.
type Chart struct {
	config ChartConfig
	font   *truetype.Font
}

func NewChart(config ChartConfig) (*Chart, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Borders == (BorderConfig{}) {
		config.Borders = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
			Gap:    defaultPanelGap,
		}
	}

	b := config.Borders
	if config.Width <= b.Left+b.Right || (config.Height-b.Top-b.Bottom-b.Gap)/2 <= 0 {
		return nil, fmt.Errorf("chart of %dx%d leaves no room for the panels", config.Width, config.Height)
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Chart{config: config, font: parsedFont}, nil
}

// Render draws the records, which must share a time metric, into a new image.
// Records with a non finite gain leave a gap in the gain trace.
func (c *Chart) Render(records []response.Record) (*image.RGBA, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	img := image.NewRGBA(image.Rect(0, 0, c.config.Width, c.config.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	b := c.config.Borders
	panelHeight := (c.config.Height - b.Top - b.Bottom - b.Gap) / 2
	gainArea := image.Rect(b.Left, b.Top, c.config.Width-b.Right, b.Top+panelHeight)
	timeArea := image.Rect(b.Left, gainArea.Max.Y+b.Gap, c.config.Width-b.Right, gainArea.Max.Y+b.Gap+panelHeight)

	fx := newFrequencyAxis(records, gainArea.Min.X, gainArea.Max.X)

	unit := records[0].Unit
	panels := []struct {
		area  image.Rectangle
		label string
		color color.Color
		value func(response.Record) float64
	}{
		{gainArea, "dB", gainColor, func(r response.Record) float64 { return r.GainDB }},
		{timeArea, unit.Unit(), phaseColor, func(r response.Record) float64 { return r.Time }},
	}

	ann := c.newAnnotator(img)
	defer ann.Close()

	for _, p := range panels {
		values := make([]float64, len(records))
		for i, r := range records {
			values[i] = p.value(r)
		}

		vy := newValueAxis(values, p.area.Max.Y, p.area.Min.Y)
		drawGrid(img, p.area, fx, vy)

		if err := ann.drawValueScale(p.area, vy, p.label); err != nil {
			return nil, fmt.Errorf("drawing %s scale: %w", p.label, err)
		}
		if err := ann.drawFrequencyScale(p.area, fx); err != nil {
			return nil, fmt.Errorf("drawing frequency scale: %w", err)
		}

		drawTrace(img, p.area, p.color, records, values, fx, vy)
		drawFrame(img, p.area)
	}

	return img, nil
}

// linearAxis maps values onto pixels, logarithmically when log is set.
type linearAxis struct {
	min, max float64
	lo, hi   int
	log      bool
}

func newFrequencyAxis(records []response.Record, lo, hi int) linearAxis {
	fmin, fmax := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		fmin = math.Min(fmin, r.Frequency)
		fmax = math.Max(fmax, r.Frequency)
	}
	if fmin == fmax {
		fmin, fmax = fmin/math.Sqrt(10), fmax*math.Sqrt(10)
	}
	return linearAxis{min: fmin, max: fmax, lo: lo, hi: hi, log: true}
}

// newValueAxis covers the finite values with whole ticks at both ends.
func newValueAxis(values []float64, lo, hi int) linearAxis {
	vmin, vmax := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if isFinite(v) {
			vmin = math.Min(vmin, v)
			vmax = math.Max(vmax, v)
		}
	}

	switch {
	case math.IsInf(vmin, 1):
		vmin, vmax = -1, 1
	case vmin == vmax:
		vmin, vmax = vmin-1, vmax+1
	}

	step := niceStep(vmax-vmin, yTickCount)
	return linearAxis{
		min: math.Floor(vmin/step) * step,
		max: math.Ceil(vmax/step) * step,
		lo:  lo,
		hi:  hi,
	}
}

func (a linearAxis) pos(v float64) int {
	ratio := (v - a.min) / (a.max - a.min)
	if a.log {
		ratio = math.Log10(v/a.min) / math.Log10(a.max/a.min)
	}
	return a.lo + int(math.Round(ratio*float64(a.hi-a.lo)))
}

// frequencyTicks returns the 1-2-5 points of every decade inside the axis.
func (a linearAxis) frequencyTicks() []float64 {
	var ticks []float64
	for d := math.Floor(math.Log10(a.min)); d <= math.Ceil(math.Log10(a.max)); d++ {
		for _, m := range []float64{1, 2, 5} {
			f := m * math.Pow(10, d)
			if f >= a.min*(1-1e-9) && f <= a.max*(1+1e-9) {
				ticks = append(ticks, f)
			}
		}
	}
	return ticks
}

func (a linearAxis) valueTicks() []float64 {
	step := niceStep(a.max-a.min, yTickCount)
	var ticks []float64
	for v := a.min; v <= a.max+step/2; v += step {
		ticks = append(ticks, v)
	}
	return ticks
}

// niceStep picks a 1-2-5 step giving at most n intervals over span.
func niceStep(span float64, n int) float64 {
	if span <= 0 || n <= 0 {
		return 1
	}
	rough := span / float64(n)
	base := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * base; step >= rough*(1-1e-9) {
			return step
		}
	}
	return 10 * base
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func drawGrid(img *image.RGBA, area image.Rectangle, fx, vy linearAxis) {
	for _, f := range fx.frequencyTicks() {
		x := fx.pos(f)
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
	}
	for _, v := range vy.valueTicks() {
		y := vy.pos(v)
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
	}
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y, color.Black)
		img.Set(x, area.Max.Y, color.Black)
	}
	for y := area.Min.Y; y <= area.Max.Y; y++ {
		img.Set(area.Min.X, y, color.Black)
		img.Set(area.Max.X, y, color.Black)
	}
}

// drawTrace joins consecutive finite points. A single point is drawn as a dot.
func drawTrace(img *image.RGBA, area image.Rectangle, c color.Color, records []response.Record, values []float64, fx, vy linearAxis) {
	clip := img.SubImage(area.Inset(-1)).(*image.RGBA)

	prev, havePrev := image.Point{}, false
	for i, r := range records {
		if !isFinite(values[i]) {
			havePrev = false
			continue
		}

		pt := image.Pt(fx.pos(r.Frequency), vy.pos(values[i]))
		if havePrev {
			drawLine(clip, prev, pt, c)
		} else {
			drawLine(clip, pt, pt, c)
		}
		prev, havePrev = pt, true
	}
}

// drawLine is Bresenham's algorithm, two pixels thick.
func drawLine(img *image.RGBA, from, to image.Point, c color.Color) {
	dx, dy := abs(to.X-from.X), -abs(to.Y-from.Y)
	sx, sy := sign(to.X-from.X), sign(to.Y-from.Y)
	e := dx + dy

	x, y := from.X, from.Y
	for {
		img.Set(x, y, c)
		img.Set(x, y+1, c)
		if x == to.X && y == to.Y {
			return
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x += sx
		} else {
			e += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

type annotator struct {
	img      *image.RGBA
	context  *freetype.Context
	fontFace font.Face
}

func (c *Chart) newAnnotator(img *image.RGBA) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(c.font)
	ctx.SetFontSize(c.config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	return &annotator{
		img:     img,
		context: ctx,
		fontFace: truetype.NewFace(c.font, &truetype.Options{
			Size:    c.config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) drawFrequencyScale(area image.Rectangle, fx linearAxis) error {
	metrics := a.fontFace.Metrics()
	textY := area.Max.Y + tickMarkLength + metrics.Ascent.Round() + 2

	for _, f := range fx.frequencyTicks() {
		x := fx.pos(f)
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			a.img.Set(x, y, color.Black)
		}

		label := humanize.SIWithDigits(f, 0, "Hz")
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawValueScale(area image.Rectangle, vy linearAxis, unit string) error {
	metrics := a.fontFace.Metrics()
	half := (metrics.Ascent.Round() - metrics.Descent.Round()) / 2

	for _, v := range vy.valueTicks() {
		y := vy.pos(v)
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			a.img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.4g", v)
		if unit == "s" && v != 0 {
			label = humanize.SIWithDigits(v, 1, "s")
		}
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-3-width, y+half)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}

	if _, err := a.context.DrawString(unit, freetype.Pt(area.Min.X, area.Min.Y-6)); err != nil {
		return fmt.Errorf("drawing unit: %w", err)
	}
	return nil
}
