package web

import (
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas"
)

// funcMap returns template helpers shared by all pages and partials
func (s *Server) funcMap() template.FuncMap {
	return template.FuncMap{
		"url":           s.url,
		"humanTime":     s.humanTime,
		"humanDate":     s.humanDate,
		"humanDuration": humanDuration,
		"timeUntil":     timeUntil,
		"inputDate":     s.inputDate,
		"inputDateTime": s.inputDateTime,
		"hours":         func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"percent":       func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"truncate":      truncate,
		"bytes":         humanBytes,

		"workOrderStatuses": func() []enums.WorkOrderStatus { return enums.WorkOrderStatusValues },
		"workOrderTypes":    func() []enums.WorkOrderType { return enums.WorkOrderTypeValues },
		"priorities":        func() []enums.Priority { return enums.PriorityValues },
		"severities":        func() []enums.Severity { return enums.SeverityValues },
		"failureStatuses":   func() []enums.FailureStatus { return enums.FailureStatusValues },
		"actionStatuses":    func() []enums.ActionStatus { return enums.ActionStatusValues },
		"roles":             func() []enums.Role { return enums.RoleValues },
		"criticalities":     func() []enums.Criticality { return enums.CriticalityValues },
		"trendIntervals":    func() []enums.TrendInterval { return enums.TrendIntervalValues },
		"paretoMetrics":     func() []enums.ParetoMetric { return enums.ParetoMetricValues },

		"nextStatuses":       fracas.NextWorkOrderStatuses,
		"nextActionStatuses": fracas.NextActionStatuses,
	}
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(s.loc).Format("Jan 2 2006, 15:04")
}

func (s *Server) humanDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(s.loc).Format("Jan 2 2006")
}

// inputDate formats t as a value of date input, empty for zero time
func (s *Server) inputDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(time.DateOnly)
}

// inputDateTime formats t as a value of datetime-local input, empty for zero time
func (s *Server) inputDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(dateTimeLocal)
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd %dh", int(d.Hours()/24), int(d.Hours())%24)
	}
}

// timeUntil describes due date relative to now
func timeUntil(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := t.Sub(now)
	if d < 0 {
		return "overdue " + humanDuration(d)
	}
	return "in " + humanDuration(d)
}

func truncate(str string, n int) string {
	r := []rune(str)
	if len(r) <= n {
		return str
	}
	return string(r[:n]) + "..."
}

// humanBytes formats a size in bytes with binary units, accepts int64 and uint64 sizes
func humanBytes(v any) string {
	switch t := v.(type) {
	case int64:
		if t < 0 {
			return "-" + humanize.IBytes(uint64(-t))
		}
		return humanize.IBytes(uint64(t))
	case int:
		return humanBytes(int64(t))
	case uint64:
		return humanize.IBytes(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
