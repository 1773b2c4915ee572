package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/chart"
	"github.com/umputun/fracas/app/enums"
)

// chart names served at /charts/{name}.svg, in dashboard order
var chartNames = []string{"workorders-status", "failures-status", "actions-status", "trend", "pareto", "mttr", "mtbf"}

// maxBars limits per-asset bar charts to the worst assets
const maxBars = 12

// status colors by status value, statuses without a color take one from the palette
var statusColors = map[string]string{
	"open": "#2563eb", "in_progress": "#d97706", "on_hold": "#9ca3af", "completed": "#0891b2",
	"verified": "#16a34a", "closed": "#4b5563", "cancelled": "#d1d5db",
	"reported": "#dc2626", "analyzing": "#d97706", "corrective_action": "#7c3aed",
	"implemented": "#0891b2", "ineffective": "#db2777",
}

// handleChart renders a single chart as svg document. Chart errors never fail the request,
// a placeholder is drawn instead.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("name"), ".svg")
	if !ok || !slices.Contains(chartNames, name) {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	f, err := s.parseFilter(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	interval, err := parseInterval(q.Get("interval"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	metric, err := parseMetric(q.Get("metric"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	width, _ := strconv.Atoi(q.Get("w"))
	height, _ := strconv.Atoi(q.Get("h"))

	sum, err := s.chartData(r.Context(), name, f, interval, metric)
	buf := new(bytes.Buffer)
	s.writeChart(buf, name, sum, err, chartOptions(name, width, height))

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write chart %s: %v", name, err)
	}
}

// chartData runs only the aggregation the chart needs
func (s *Server) chartData(ctx context.Context, name string, f analytics.Filter, interval enums.TrendInterval,
	metric enums.ParetoMetric) (res analytics.Summary, err error) {
	res.Filter = f
	switch name {
	case "workorders-status", "failures-status", "actions-status":
		res.Status, err = s.analytics.StatusCounts(ctx, f)
	case "trend":
		res.Trend, err = s.analytics.Trend(ctx, f, interval)
	case "pareto":
		res.Pareto, err = s.analytics.Pareto(ctx, f, metric)
	case "mttr":
		res.MTTR, err = s.analytics.MTTR(ctx, f)
	case "mtbf":
		res.MTBF, err = s.analytics.MTBF(ctx, f)
	}
	return res, err
}

// chartPart returns the summary part the chart is drawn from
func chartPart(name string) string {
	switch name {
	case "workorders-status", "failures-status", "actions-status":
		return analytics.PartStatus
	default:
		return name // trend, pareto, mttr and mtbf are named after their parts
	}
}

// writeChart draws the chart, or a placeholder if data failed to load or the chart can't be drawn
func (s *Server) writeChart(w io.Writer, name string, sum analytics.Summary, dataErr error, opts chart.Options) {
	err := dataErr
	if err == nil {
		buf := new(bytes.Buffer)
		if err = drawChart(buf, name, sum, opts); err == nil {
			if _, err = buf.WriteTo(w); err != nil {
				log.Printf("[WARN] failed to write chart %s: %v", name, err)
			}
			return
		}
	}

	msg := "chart unavailable"
	if errors.Is(err, chart.ErrNoData) {
		msg = "no data for selected range"
		log.Printf("[DEBUG] chart %s: %v", name, err)
	} else {
		log.Printf("[WARN] can't render chart %s: %v", name, err)
	}
	if perr := chart.Placeholder(w, msg, chart.Options{Width: opts.Width, Height: 120}); perr != nil {
		log.Printf("[WARN] failed to write chart placeholder: %v", perr)
	}
}

// chartOptions returns default title and size of the chart, non-zero width and height override the size
func chartOptions(name string, width, height int) chart.Options {
	res := chart.Options{Width: 640, Height: 260}
	switch name {
	case "workorders-status":
		res.Title, res.Height = "Work orders by status", 84
	case "failures-status":
		res.Title, res.Height = "Failures by status", 84
	case "actions-status":
		res.Title, res.Height = "Corrective actions by status", 84
	case "trend":
		res.Title, res.YLabel = "Failures and work orders", "count"
	case "pareto":
		res.Title, res.YLabel = "Failure modes (Pareto)", "failures"
	case "mttr":
		res.Title, res.YLabel = "Mean time to repair by asset", "hours"
	case "mtbf":
		res.Title, res.YLabel = "Mean time between failures by asset", "hours"
	}
	if width >= 200 && width <= 2000 {
		res.Width = width
	}
	if height >= 60 && height <= 1200 {
		res.Height = height
	}
	return res
}

// drawChart renders the named chart from summary data
func drawChart(w io.Writer, name string, sum analytics.Summary, opts chart.Options) error {
	switch name {
	case "workorders-status":
		return chart.StatusBar(w, statusSegments(sum.Status.WorkOrders), opts)
	case "failures-status":
		return chart.StatusBar(w, statusSegments(sum.Status.Failures), opts)
	case "actions-status":
		return chart.StatusBar(w, statusSegments(sum.Status.Actions), opts)

	case "trend":
		failures, opened, completed := sum.Trend.Series()
		return chart.LineChart(w, sum.Trend.Labels(), []chart.Series{
			{Name: "failures", Values: failures, Color: "#dc2626"},
			{Name: "opened", Values: opened, Color: "#2563eb"},
			{Name: "completed", Values: completed, Color: "#16a34a"},
		}, opts)

	case "pareto":
		labels := make([]string, 0, len(sum.Pareto.Items))
		values := make([]float64, 0, len(sum.Pareto.Items))
		cumulative := make([]float64, 0, len(sum.Pareto.Items))
		for _, it := range sum.Pareto.Items {
			labels = append(labels, it.Code)
			values = append(values, float64(it.Value))
			cumulative = append(cumulative, it.Cumulative)
		}
		if sum.Pareto.Metric == enums.ParetoMetricDowntime {
			opts.YLabel = "downtime, min"
		}
		return chart.ParetoChart(w, labels, values, cumulative, analytics.VitalFewShare, opts)

	case "mttr":
		var labels []string
		var values []float64
		for _, a := range sum.MTTR.PerAsset {
			if len(labels) == maxBars {
				break
			}
			labels, values = append(labels, a.AssetTag), append(values, a.Hours)
		}
		return chart.BarChart(w, labels, values, opts)

	case "mtbf":
		var labels []string
		var values []float64
		for _, a := range sum.MTBF.PerAsset {
			if !a.HasMTBF || len(labels) == maxBars {
				break // sorted with assets lacking MTBF last
			}
			labels, values = append(labels, a.AssetTag), append(values, a.Hours)
		}
		return chart.BarChart(w, labels, values, opts)
	}
	return errors.New("unknown chart " + name)
}

func statusSegments(counts []analytics.Count) []chart.Segment {
	res := make([]chart.Segment, 0, len(counts))
	for _, c := range counts {
		res = append(res, chart.Segment{Label: c.Title, Value: float64(c.Count), Color: statusColors[c.Status]})
	}
	return res
}
