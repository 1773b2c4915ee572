package chart

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"slices"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// BarChart draws one bar per label
func BarChart(w io.Writer, labels []string, values []float64, opts Options) error {
	if err := validate(labels, values); err != nil {
		return err
	}
	opts = opts.withDefaults(640, 260)
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	fill := color("", 0)
	bars := make([]gochart.Value, 0, len(values))
	for i, v := range values {
		bars = append(bars, gochart.Value{
			Label: esc(truncate(labels[i], 14)),
			Value: v,
			Style: gochart.Style{FillColor: fill, StrokeColor: fill, StrokeWidth: 1},
		})
	}
	slot := max(8, (opts.Width-plotMargin)/len(bars))
	return write(w, gochart.BarChart{
		Title:        esc(opts.Title),
		TitleStyle:   titleStyle(),
		ColorPalette: theme{},
		Width:        opts.Width,
		Height:       opts.Height,
		Font:         font,
		Background:   gochart.Style{Padding: gochart.Box{Top: titleRow + 8, Left: 8, Right: 8, Bottom: 8}},
		XAxis:        axisStyle(),
		YAxis:        valueAxis(opts.YLabel, maxOf(values)),
		BarWidth:     slot * 7 / 10,
		BarSpacing:   max(1, slot*3/10),
		Bars:         bars,
	})
}

// LineChart draws every series as a line with dots over shared labels, with a legend
func LineChart(w io.Writer, labels []string, series []Series, opts Options) error {
	if len(series) == 0 || len(labels) == 0 {
		return ErrNoData
	}
	maxVal := 0.0
	for _, s := range series {
		if err := validate(labels, s.Values); err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
		maxVal = math.Max(maxVal, maxOf(s.Values))
	}
	opts = opts.withDefaults(640, 260)
	c, err := newChart(opts, labels, maxVal, true)
	if err != nil {
		return err
	}

	xs := positions(len(labels))
	items := make([]legendItem, 0, len(series))
	for i, s := range series {
		col := color(s.Color, i)
		c.Series = append(c.Series, gochart.ContinuousSeries{
			Name:    esc(s.Name),
			XValues: xs,
			YValues: s.Values,
			Style:   gochart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 2.5},
		})
		items = append(items, legendItem{label: esc(truncate(s.Name, 20)), color: col})
	}
	c.Elements = []gochart.Renderable{legend(items, titleRow+12)}
	return write(w, c)
}

// ParetoChart draws bars sorted by the caller with a cumulative percentage line on the secondary axis
// and a dashed line at threshold percent
func ParetoChart(w io.Writer, labels []string, values, cumulative []float64, threshold float64, opts Options) error {
	if err := validate(labels, values); err != nil {
		return err
	}
	if len(cumulative) != len(values) {
		return fmt.Errorf("%w: %d values, %d cumulative", ErrMismatch, len(values), len(cumulative))
	}
	for i, v := range cumulative {
		if math.IsNaN(v) || v < 0 || v > 100.0001 {
			return fmt.Errorf("%w: cumulative %v at %d", ErrInvalidValue, v, i)
		}
	}
	opts = opts.withDefaults(640, 280)
	c, err := newChart(opts, labels, maxOf(values), false)
	if err != nil {
		return err
	}
	c.YAxisSecondary = gochart.YAxis{
		Style:          axisStyle(),
		Range:          &gochart.ContinuousRange{Min: 0, Max: 100},
		ValueFormatter: percentFormatter,
		GridMajorStyle: gochart.Style{Hidden: true},
		GridMinorStyle: gochart.Style{Hidden: true},
	}

	xs := positions(len(values))
	bar, line, mark := color("", 0), color("", 1), color("", 3)
	c.Series = []gochart.Series{
		barSeries{gochart.ContinuousSeries{
			Name:    "value",
			XValues: xs,
			YValues: values,
			Style:   gochart.Style{FillColor: bar, StrokeColor: bar, StrokeWidth: 1},
		}},
		gochart.ContinuousSeries{
			Name:    "cumulative",
			YAxis:   gochart.YAxisSecondary,
			XValues: xs,
			YValues: cumulative,
			Style:   gochart.Style{StrokeColor: line, StrokeWidth: 2, DotColor: line, DotWidth: 2.5},
		},
	}
	if threshold > 0 && threshold < 100 {
		c.Series = append(c.Series, gochart.ContinuousSeries{
			Name:    "threshold",
			YAxis:   gochart.YAxisSecondary,
			XValues: []float64{-0.5, float64(len(values)) - 0.5},
			YValues: []float64{threshold, threshold},
			Style:   gochart.Style{StrokeColor: mark, StrokeWidth: 1, StrokeDashArray: []float64{4, 3}},
		})
	}
	return write(w, c)
}

// StatusBar draws segments stacked into a single horizontal bar with a legend below.
// Zero segments are listed in the legend but take no width.
func StatusBar(w io.Writer, segments []Segment, opts Options) error {
	if len(segments) == 0 {
		return ErrNoData
	}
	values := make([]float64, len(segments))
	total := 0.0
	for i, s := range segments {
		values[i] = s.Value
		total += s.Value
	}
	if err := checkValues(values); err != nil {
		return err
	}
	if total == 0 {
		return ErrNoData
	}
	opts = opts.withDefaults(640, 84)
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	top := 8
	if opts.Title != "" {
		top = titleRow
	}
	const barHeight = 18
	parts := make([]gochart.Value, 0, len(segments))
	items := make([]legendItem, 0, len(segments))
	for i, s := range segments {
		col := color(s.Color, i)
		parts = append(parts, gochart.Value{Value: s.Value, Style: gochart.Style{FillColor: col, StrokeColor: col}})
		items = append(items, legendItem{label: esc(truncate(s.Label, 18) + " " + formatValue(s.Value)), color: col})
	}
	slices.Reverse(parts) // horizontal bars are drawn from the right edge

	return write(w, gochart.StackedBarChart{
		Title:        esc(opts.Title),
		TitleStyle:   titleStyle(),
		ColorPalette: theme{},
		Width:        opts.Width,
		Height:       opts.Height,
		Font:         font,
		Background:   gochart.Style{Padding: gochart.Box{Top: top, Left: 8, Right: 8, Bottom: 8}},
		XAxis:        gochart.Style{Hidden: true},
		YAxis:        gochart.Style{Hidden: true},
		IsHorizontal: true,
		BarSpacing:   2,
		Bars:         []gochart.StackedBar{{Width: barHeight, Values: parts}},
		Elements:     []gochart.Renderable{statusLegend(items, top+barHeight+16)},
	})
}

// statusLegend draws legend items left to right, wrapping to the next row when out of width
func statusLegend(items []legendItem, y int) gochart.Renderable {
	return func(r gochart.Renderer, cb gochart.Box, defaults gochart.Style) {
		style := gochart.Style{Font: defaults.Font, FontSize: 8, FontColor: textColor}
		x := cb.Left
		for _, it := range items {
			wd := gochart.Draw.MeasureText(r, it.label, style).Width() + 26
			if x+wd > cb.Right && x > cb.Left {
				x, y = cb.Left, y+14
			}
			box := gochart.Box{Top: y - 9, Left: x, Right: x + 10, Bottom: y + 1}
			gochart.Draw.Box(r, box, gochart.Style{FillColor: it.color, StrokeColor: it.color, StrokeWidth: 1})
			gochart.Draw.Text(r, it.label, x+14, y, style)
			x += wd
		}
	}
}

// Placeholder writes a chart-sized box with a message, used instead of a chart that can't be rendered.
// go-chart can't draw a chart without series, so the box is written directly.
func Placeholder(w io.Writer, msg string, opts Options) error {
	opts = opts.withDefaults(640, 120)
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, `<svg xmlns="http://www.w3.org/2000/svg" class="chart-placeholder" viewBox="0 0 %d %d">`,
		opts.Width, opts.Height)
	fmt.Fprintf(buf, `<rect x="1" y="1" width="%d" height="%d" rx="6" fill="none" stroke="currentColor" `+
		`stroke-opacity="0.3" stroke-dasharray="6 4"/>`, opts.Width-2, opts.Height-2)
	fmt.Fprintf(buf, `<text x="%d" y="%d" text-anchor="middle" fill="currentColor" fill-opacity="0.6" `+
		`font-family="sans-serif" font-size="12">%s</text></svg>`, opts.Width/2, opts.Height/2+4, esc(msg))
	_, err := buf.WriteTo(w)
	return err
}

// positions returns x positions 0..n-1 of category slots
func positions(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = float64(i)
	}
	return res
}
