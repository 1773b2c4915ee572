package web

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

// layout of datetime-local inputs
const dateTimeLocal = "2006-01-02T15:04"

// status filter values beyond the enum ones
const (
	statusActive  = "active"
	statusOpen    = "unfinished"
	statusOverdue = "overdue"
)

// parseTime accepts date, datetime-local or RFC3339 values; date and datetime-local are in server location.
// dateOnly reports a value without time part.
func (s *Server) parseTime(v string) (t time.Time, dateOnly bool, err error) {
	v = strings.TrimSpace(v)
	if t, err := time.ParseInLocation(time.DateOnly, v, s.loc); err == nil {
		return t, true, nil
	}
	if t, err := time.ParseInLocation(dateTimeLocal, v, s.loc); err == nil {
		return t, false, nil
	}
	t, err = time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid time %q, expected YYYY-MM-DD", v)
	}
	return t, false, nil
}

// parseFilter makes analytics filter from query params. The "to" date is inclusive, so the range ends
// at the start of the next day.
func (s *Server) parseFilter(q url.Values) (analytics.Filter, error) {
	f := analytics.Filter{AssetID: q.Get("asset"), Category: q.Get("category")}
	if v := q.Get("from"); v != "" {
		t, _, err := s.parseTime(v)
		if err != nil {
			return analytics.Filter{}, fmt.Errorf("from: %w", err)
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, dateOnly, err := s.parseTime(v)
		if err != nil {
			return analytics.Filter{}, fmt.Errorf("to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return analytics.Filter{}, fmt.Errorf("from must be before to")
	}
	return f, nil
}

// parseInterval returns trend interval, weekly if not set
func parseInterval(v string) (enums.TrendInterval, error) {
	if v == "" {
		return enums.TrendIntervalWeek, nil
	}
	return enums.ParseTrendInterval(v)
}

// parseMetric returns Pareto metric, failure count if not set
func parseMetric(v string) (enums.ParetoMetric, error) {
	if v == "" {
		return enums.ParetoMetricCount, nil
	}
	return enums.ParseParetoMetric(v)
}

// parsePage returns 1-based page number and the offset of its first row
func (s *Server) parsePage(q url.Values) (page, offset int) {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return page, (page - 1) * s.pageSize
}

// queryValues flattens query params for templates, keeping the first value of each
func queryValues(q url.Values) map[string]string {
	res := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			res[k] = v[0]
		}
	}
	return res
}

// setPager fills page number with previous and next page links of the list page at path
func (s *Server) setPager(data *TemplateData, path string, q url.Values, page int, hasNext bool) {
	data.PageNum = page
	link := func(p int) string {
		v := maps.Clone(q)
		if v == nil {
			v = url.Values{}
		}
		v.Set("page", strconv.Itoa(p))
		return s.url(path) + "?" + v.Encode()
	}
	if page > 1 {
		data.PrevURL = link(page - 1)
	}
	if hasNext {
		data.NextURL = link(page + 1)
	}
}

// workOrderQuery parses work order list params. Limit is one more than page size to detect the next page.
func (s *Server) workOrderQuery(r *http.Request) (persistence.WorkOrderQuery, int, error) {
	q := r.URL.Query()
	page, offset := s.parsePage(q)
	res := persistence.WorkOrderQuery{AssetID: q.Get("asset"), AssigneeID: q.Get("assignee"),
		FailureID: q.Get("failure"), Search: q.Get("search"), Limit: s.pageSize + 1, Offset: offset}

	switch status := q.Get("status"); status {
	case "":
	case statusActive:
		res.ActiveOnly = true
	case statusOverdue:
		res.OverdueAt = time.Now()
	default:
		st, err := enums.ParseWorkOrderStatus(status)
		if err != nil {
			return res, 0, err
		}
		res.Statuses = []enums.WorkOrderStatus{st}
	}
	if v := q.Get("type"); v != "" {
		tp, err := enums.ParseWorkOrderType(v)
		if err != nil {
			return res, 0, err
		}
		res.Type = tp
	}
	if v := q.Get("priority"); v != "" {
		p, err := enums.ParsePriority(v)
		if err != nil {
			return res, 0, err
		}
		res.Priority = p
	}
	switch v := q.Get("sort"); v {
	case "", persistence.SortNewest, persistence.SortOldest, persistence.SortPriority, persistence.SortDue:
		res.Sort = v
	default:
		return res, 0, fmt.Errorf("invalid sort %q", v)
	}
	return res, page, nil
}

// failureQuery parses failure list params
func (s *Server) failureQuery(r *http.Request) (persistence.FailureQuery, int, error) {
	q := r.URL.Query()
	page, offset := s.parsePage(q)
	res := persistence.FailureQuery{AssetID: q.Get("asset"), FailureMode: q.Get("mode"), Search: q.Get("search"),
		Limit: s.pageSize + 1, Offset: offset}

	switch status := q.Get("status"); status {
	case "":
	case statusOpen:
		res.OpenOnly = true
	default:
		st, err := enums.ParseFailureStatus(status)
		if err != nil {
			return res, 0, err
		}
		res.Statuses = []enums.FailureStatus{st}
	}
	if v := q.Get("severity"); v != "" {
		sv, err := enums.ParseSeverity(v)
		if err != nil {
			return res, 0, err
		}
		res.Severity = sv
	}
	return res, page, nil
}

// actionQuery parses corrective action list params
func (s *Server) actionQuery(r *http.Request) (persistence.ActionQuery, error) {
	q := r.URL.Query()
	res := persistence.ActionQuery{FailureID: q.Get("failure"), OwnerID: q.Get("owner"), Limit: s.pageSize}
	switch status := q.Get("status"); status {
	case "":
	case statusOpen:
		res.OpenOnly = true
	case statusOverdue:
		res.OverdueAt = time.Now()
	default:
		st, err := enums.ParseActionStatus(status)
		if err != nil {
			return res, err
		}
		res.Statuses = []enums.ActionStatus{st}
	}
	return res, nil
}

// assetQuery parses asset list params
func assetQuery(r *http.Request) persistence.AssetQuery {
	q := r.URL.Query()
	return persistence.AssetQuery{Category: q.Get("category"), Search: strings.TrimSpace(q.Get("search")),
		Scheduled: q.Get("scheduled") != ""}
}

// userFilter selects users of the users page by role, active flag and name or email substring
type userFilter struct {
	role   enums.Role
	active string // "yes", "no" or empty for all
	search string
}

func parseUserFilter(r *http.Request) (userFilter, error) {
	q := r.URL.Query()
	res := userFilter{search: strings.ToLower(strings.TrimSpace(q.Get("search")))}
	if v := q.Get("role"); v != "" {
		role, err := enums.ParseRole(v)
		if err != nil {
			return res, err
		}
		res.role = role
	}
	switch v := q.Get("active"); v {
	case "", "yes", "no":
		res.active = v
	default:
		return res, fmt.Errorf("invalid active filter %q, expected yes or no", v)
	}
	return res, nil
}

func (f userFilter) match(u persistence.User) bool {
	if f.role != "" && u.Role != f.role {
		return false
	}
	if (f.active == "yes" && !u.Active) || (f.active == "no" && u.Active) {
		return false
	}
	return f.search == "" || strings.Contains(strings.ToLower(u.Name), f.search) ||
		strings.Contains(strings.ToLower(u.Email), f.search)
}
