package chart

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wellFormed checks the output parses as xml and returns it
func wellFormed(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "<svg "), out)
	require.True(t, strings.HasSuffix(out, "</svg>"), out)
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err, out)
	}
	return out
}

const (
	blueFill  = "fill:rgba(37,99,235,1.0)"
	redFill   = "fill:rgba(220,38,38,1.0)"
	greenFill = "fill:rgba(22,163,74,1.0)"
)

func TestBarChart(t *testing.T) {
	var buf bytes.Buffer
	err := BarChart(&buf, []string{"open", "closed", "<b>&"}, []float64{3, 7, 0}, Options{Title: "Work orders"})
	require.NoError(t, err)
	out := wellFormed(t, &buf)
	assert.Equal(t, 3, strings.Count(out, blueFill), "one bar per value")
	assert.Contains(t, out, ">Work orders</text>")
	assert.Contains(t, out, "&lt;b&gt;&amp;", "labels escaped")
	assert.Contains(t, out, ">10</text>", "axis rounded up to 10")
	assert.Contains(t, out, `viewBox="0 0 640 260"`)

	t.Run("all zero", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, BarChart(&buf, []string{"a", "b"}, []float64{0, 0}, Options{}))
		out := wellFormed(t, &buf)
		assert.Contains(t, out, ">1</text>", "axis still has a range")
	})

	tests := []struct {
		name   string
		labels []string
		values []float64
		err    error
	}{
		{"empty", nil, nil, ErrNoData},
		{"mismatch", []string{"a"}, []float64{1, 2}, ErrMismatch},
		{"no labels", nil, []float64{1}, ErrMismatch},
		{"negative", []string{"a"}, []float64{-1}, ErrInvalidValue},
		{"nan", []string{"a"}, []float64{math.NaN()}, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := BarChart(&buf, tt.labels, tt.values, Options{})
			require.ErrorIs(t, err, tt.err)
			assert.Empty(t, buf.String(), "nothing written on error")
		})
	}
}

func TestLineChart(t *testing.T) {
	var buf bytes.Buffer
	labels := []string{"2025-06-01", "2025-06-02", "2025-06-03"}
	err := LineChart(&buf, labels, []Series{
		{Name: "failures", Values: []float64{1, 0, 2}},
		{Name: "completed", Values: []float64{0, 1, 1}, Color: "#000000"},
	}, Options{Width: 400, Height: 200, YLabel: "count"})
	require.NoError(t, err)
	out := wellFormed(t, &buf)
	assert.Equal(t, 6, strings.Count(out, "<circle "), "dot per point")
	assert.Contains(t, out, "stroke:rgba(0,0,0,1.0)", "custom series color")
	assert.Contains(t, out, ">failures</text>", "legend")
	assert.Contains(t, out, ">count</text>", "axis name")
	assert.Contains(t, out, ">2025-06-02</text>")
	assert.Contains(t, out, `viewBox="0 0 400 200"`)

	t.Run("single point", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, LineChart(&buf, []string{"x"}, []Series{{Name: "s", Values: []float64{0}}}, Options{}))
		wellFormed(t, &buf)
	})

	t.Run("errors", func(t *testing.T) {
		var buf bytes.Buffer
		require.ErrorIs(t, LineChart(&buf, labels, nil, Options{}), ErrNoData)
		err := LineChart(&buf, labels, []Series{{Name: "short", Values: []float64{1}}}, Options{})
		require.ErrorIs(t, err, ErrMismatch)
		assert.Contains(t, err.Error(), `series "short"`)
		assert.Empty(t, buf.String())
	})

	t.Run("many labels thinned", func(t *testing.T) {
		var buf bytes.Buffer
		labels := make([]string, 60)
		values := make([]float64, 60)
		for i := range labels {
			labels[i] = strings.Repeat("d", 3) + string(rune('a'+i%26))
		}
		require.NoError(t, LineChart(&buf, labels, []Series{{Name: "s", Values: values}}, Options{Width: 400}))
		out := wellFormed(t, &buf)
		shown := strings.Count(out, ">ddd")
		assert.Positive(t, shown)
		assert.Less(t, shown, 60)
	})
}

func TestParetoChart(t *testing.T) {
	var buf bytes.Buffer
	err := ParetoChart(&buf, []string{"leak", "wear", "unclassified"}, []float64{6, 3, 1}, []float64{60, 90, 100}, 80,
		Options{Title: "Failure modes"})
	require.NoError(t, err)
	out := wellFormed(t, &buf)
	assert.Equal(t, 3, strings.Count(out, blueFill), "one bar per value")
	assert.Contains(t, out, "stroke:rgba(220,38,38,1.0)", "cumulative line")
	assert.Contains(t, out, "stroke-dasharray", "threshold line")
	assert.Contains(t, out, ">100%</text>")
	assert.Contains(t, out, ">unclassified</text>")

	t.Run("no threshold", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ParetoChart(&buf, []string{"a"}, []float64{1}, []float64{100}, 0, Options{}))
		assert.NotContains(t, wellFormed(t, &buf), "stroke-dasharray")
	})

	var empty bytes.Buffer
	require.ErrorIs(t, ParetoChart(&empty, []string{"a"}, []float64{1}, []float64{}, 80, Options{}), ErrMismatch)
	require.ErrorIs(t, ParetoChart(&empty, []string{"a"}, []float64{1}, []float64{120}, 80, Options{}), ErrInvalidValue)
	require.ErrorIs(t, ParetoChart(&empty, nil, nil, nil, 80, Options{}), ErrNoData)
	assert.Empty(t, empty.String())
}

func TestStatusBar(t *testing.T) {
	var buf bytes.Buffer
	err := StatusBar(&buf, []Segment{{Label: "Open", Value: 2}, {Label: "On Hold", Value: 0}, {Label: "Closed", Value: 6}},
		Options{Title: "Work orders by status"})
	require.NoError(t, err)
	out := wellFormed(t, &buf)
	assert.Equal(t, 2, strings.Count(out, blueFill), "open segment and its legend box")
	assert.Equal(t, 1, strings.Count(out, redFill), "zero segment only in legend")
	assert.Equal(t, 2, strings.Count(out, greenFill), "closed segment and its legend box")
	assert.Contains(t, out, ">On Hold 0</text>", "zero segment in legend")
	assert.Contains(t, out, ">Work orders by status</text>")
	assert.Contains(t, out, `viewBox="0 0 640 84"`)

	require.ErrorIs(t, StatusBar(&bytes.Buffer{}, nil, Options{}), ErrNoData)
	require.ErrorIs(t, StatusBar(&bytes.Buffer{}, []Segment{{Label: "a"}}, Options{}), ErrNoData)
	require.ErrorIs(t, StatusBar(&bytes.Buffer{}, []Segment{{Label: "a", Value: -2}}, Options{}), ErrInvalidValue)
}

func TestPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Placeholder(&buf, "chart <unavailable>", Options{Width: 300}))
	out := wellFormed(t, &buf)
	assert.Contains(t, out, ">chart &lt;unavailable&gt;</text>")
	assert.Contains(t, out, `viewBox="0 0 300 120"`)
}

func TestColor(t *testing.T) {
	assert.Equal(t, "rgba(0,0,0,1.0)", color("#000", 5).String())
	assert.Equal(t, "rgba(18,52,86,1.0)", color("#123456", 0).String())
	assert.Equal(t, "rgba(220,38,38,1.0)", color("nope", 1).String(), "palette color for bad value")
	assert.Equal(t, "rgba(37,99,235,1.0)", color("", 8).String(), "palette wraps around")
}

func TestNiceCeil(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 1}, {1, 1}, {3, 5}, {7, 10}, {11, 20}, {23, 25}, {0.3, 0.5}, {150, 200}, {1000, 1000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, niceCeil(tt.in), 1e-9, "niceCeil(%v)", tt.in)
	}
	assert.Equal(t, "2.5", formatValue(2.5))
	assert.Equal(t, "3", formatValue(3))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
