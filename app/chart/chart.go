// Package chart renders dashboard charts as SVG with go-chart: bars, lines, Pareto and a stacked
// status bar. Backgrounds are transparent and text color can be overridden by page css, so charts
// follow the page theme. Renderers write nothing on error, callers are free to substitute a placeholder.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	// ErrNoData returned when there is nothing to draw
	ErrNoData = errors.New("no data to chart")
	// ErrMismatch returned when labels and values differ in length
	ErrMismatch = errors.New("labels and values mismatch")
	// ErrInvalidValue returned for negative, NaN or infinite values
	ErrInvalidValue = errors.New("invalid chart value")
)

// Palette is the default series colors
var Palette = []string{"#2563eb", "#dc2626", "#16a34a", "#d97706", "#7c3aed", "#0891b2", "#db2777", "#4b5563"}

// Options are common chart settings, zero values are replaced by defaults
type Options struct {
	Width  int
	Height int
	Title  string
	YLabel string
}

// Series is a named set of values of a line chart
type Series struct {
	Name   string
	Values []float64
	Color  string // #rrggbb, palette color if empty
}

// Segment is a part of a status bar
type Segment struct {
	Label string
	Value float64
	Color string // #rrggbb, palette color if empty
}

const (
	gridLines   = 4
	minLabelGap = 44 // px between x labels
	plotMargin  = 80 // horizontal space taken by axes
	titleRow    = 28
	legendRow   = 18
)

var (
	textColor = drawing.ColorFromHex("6b7280")
	axisColor = drawing.ColorFromHex("9ca3af")
	gridColor = axisColor.WithAlpha(64)
)

// theme is a go-chart palette with transparent background and canvas
type theme struct{}

func (theme) BackgroundColor() drawing.Color       { return drawing.ColorTransparent }
func (theme) BackgroundStrokeColor() drawing.Color { return drawing.ColorTransparent }
func (theme) CanvasColor() drawing.Color           { return drawing.ColorTransparent }
func (theme) CanvasStrokeColor() drawing.Color     { return drawing.ColorTransparent }
func (theme) AxisStrokeColor() drawing.Color       { return axisColor }
func (theme) TextColor() drawing.Color             { return textColor }
func (theme) GetSeriesColor(i int) drawing.Color   { return color("", i) }

func (o Options) withDefaults(w, h int) Options {
	if o.Width <= 0 {
		o.Width = w
	}
	if o.Height <= 0 {
		o.Height = h
	}
	return o
}

// renderable is any go-chart chart type
type renderable interface {
	Render(rp gochart.RendererProvider, w io.Writer) error
}

// write renders the chart to a buffer and copies it to w only if rendering succeeded
func write(w io.Writer, c renderable) error {
	buf := new(bytes.Buffer)
	if err := c.Render(gochart.SVG, buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// newChart makes a chart over category labels with a primary y axis from zero to maxVal rounded up
func newChart(opts Options, labels []string, maxVal float64, withLegend bool) (gochart.Chart, error) {
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return gochart.Chart{}, fmt.Errorf("failed to load font: %w", err)
	}
	top := titleRow
	if withLegend {
		top += legendRow
	}
	hidden := gochart.Style{Hidden: true}
	return gochart.Chart{
		Title:        esc(opts.Title),
		TitleStyle:   titleStyle(),
		ColorPalette: theme{},
		Width:        opts.Width,
		Height:       opts.Height,
		Font:         font,
		Background:   gochart.Style{Padding: gochart.Box{Top: top, Left: 8, Right: 8, Bottom: 8}},
		XAxis: gochart.XAxis{
			Style:          axisStyle(),
			Ticks:          categoryTicks(labels, opts.Width),
			GridMajorStyle: hidden,
			GridMinorStyle: hidden,
		},
		YAxis:          valueAxis(opts.YLabel, maxVal),
		YAxisSecondary: gochart.YAxis{Style: hidden},
	}, nil
}

// valueAxis is a y axis from zero to maxVal rounded up with evenly spaced grid lines
func valueAxis(name string, maxVal float64) gochart.YAxis {
	top := niceCeil(maxVal)
	ticks := make([]gochart.Tick, 0, gridLines+1)
	for i := 0; i <= gridLines; i++ {
		v := top * float64(i) / gridLines
		ticks = append(ticks, gochart.Tick{Value: v, Label: formatValue(v)})
	}
	grid := gochart.Style{StrokeColor: gridColor, StrokeWidth: 1}
	return gochart.YAxis{
		Name:           esc(name),
		NameStyle:      axisStyle(),
		Style:          axisStyle(),
		Range:          &gochart.ContinuousRange{Min: 0, Max: top},
		Ticks:          ticks,
		ValueFormatter: valueFormatter,
		GridMajorStyle: grid,
		GridMinorStyle: grid,
	}
}

// categoryTicks places labels at 0..n-1 with half a slot of padding on both sides,
// thinned out to avoid overlaps
func categoryTicks(labels []string, width int) []gochart.Tick {
	n := len(labels)
	fit := max(1, (width-plotMargin)/minLabelGap)
	step := max(1, int(math.Ceil(float64(n)/float64(fit))))
	res := []gochart.Tick{{Value: -0.5}}
	for i, l := range labels {
		if i%step == 0 {
			res = append(res, gochart.Tick{Value: float64(i), Label: esc(truncate(l, 14))})
		}
	}
	return append(res, gochart.Tick{Value: float64(n) - 0.5})
}

func axisStyle() gochart.Style {
	return gochart.Style{StrokeColor: axisColor, StrokeWidth: 1, FontColor: textColor, FontSize: 8}
}

func titleStyle() gochart.Style {
	return gochart.Style{FontColor: textColor, FontSize: 11}
}

// barSeries draws values as bars centered at their x with a gap between neighbors
type barSeries struct {
	gochart.ContinuousSeries
}

// Render implements gochart.Series
func (b barSeries) Render(r gochart.Renderer, canvasBox gochart.Box, xrange, yrange gochart.Range, defaults gochart.Style) {
	width := 1
	if n := b.Len(); n > 0 {
		width = max(1, int(float64(xrange.GetDomain())/float64(n)*0.7))
	}
	gochart.Draw.HistogramSeries(r, canvasBox, xrange, yrange, b.Style.InheritFrom(defaults), b, width)
}

type legendItem struct {
	label string
	color drawing.Color
}

// legend draws a row of color boxes with labels under the title, right aligned
func legend(items []legendItem, y int) gochart.Renderable {
	return func(r gochart.Renderer, cb gochart.Box, defaults gochart.Style) {
		style := gochart.Style{Font: defaults.Font, FontSize: 8, FontColor: textColor}
		x := cb.Right
		for i := len(items) - 1; i >= 0; i-- {
			tb := gochart.Draw.MeasureText(r, items[i].label, style)
			x -= tb.Width()
			gochart.Draw.Text(r, items[i].label, x, y, style)
			x -= 14
			box := gochart.Box{Top: y - 9, Left: x, Right: x + 10, Bottom: y + 1}
			gochart.Draw.Box(r, box, gochart.Style{FillColor: items[i].color, StrokeColor: items[i].color, StrokeWidth: 1})
			x -= 12
		}
	}
}

func validate(labels []string, values []float64) error {
	if len(values) == 0 {
		return ErrNoData
	}
	if len(labels) != len(values) {
		return fmt.Errorf("%w: %d labels, %d values", ErrMismatch, len(labels), len(values))
	}
	return checkValues(values)
}

func checkValues(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %v at %d", ErrInvalidValue, v, i)
		}
	}
	return nil
}

func maxOf(values []float64) float64 {
	res := 0.0
	for _, v := range values {
		res = math.Max(res, v)
	}
	return res
}

// niceCeil rounds v up to 1, 2, 2.5 or 5 times a power of ten, 1 for zero
func niceCeil(v float64) float64 {
	if v <= 0 {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func valueFormatter(v any) string {
	if f, ok := v.(float64); ok {
		return formatValue(f)
	}
	return fmt.Sprint(v)
}

func percentFormatter(v any) string {
	return valueFormatter(v) + "%"
}

// color parses #rgb or #rrggbb, anything else takes i-th palette color
func color(c string, i int) drawing.Color {
	if h := strings.TrimPrefix(c, "#"); (len(h) == 3 || len(h) == 6) && isHex(h) {
		return drawing.ColorFromHex(h)
	}
	return drawing.ColorFromHex(Palette[i%len(Palette)])
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// esc escapes text, go-chart writes text bodies to svg as is
func esc(s string) string { return html.EscapeString(s) }
