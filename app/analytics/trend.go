package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

// MaxTrendPoints limits number of buckets in a trend
const MaxTrendPoints = 400

// ErrTooManyPoints returned when the range is too wide for the interval
var ErrTooManyPoints = errors.New("too many trend points")

// Trend is the number of reported failures, opened and completed work orders per time bucket
type Trend struct {
	Interval enums.TrendInterval `json:"interval"`
	From     time.Time           `json:"from"`
	To       time.Time           `json:"to"`
	Points   []TrendPoint        `json:"points"`
}

// TrendPoint is a single bucket of the trend, Start is the bucket start in the service location
type TrendPoint struct {
	Start     time.Time `json:"start"`
	Label     string    `json:"label"`
	Failures  int       `json:"failures"`
	Opened    int       `json:"opened"`
	Completed int       `json:"completed"`
}

// Labels returns bucket labels
func (t Trend) Labels() []string {
	res := make([]string, len(t.Points))
	for i, p := range t.Points {
		res[i] = p.Label
	}
	return res
}

// Series returns values of failures, opened and completed in bucket order
func (t Trend) Series() (failures, opened, completed []float64) {
	failures = make([]float64, len(t.Points))
	opened = make([]float64, len(t.Points))
	completed = make([]float64, len(t.Points))
	for i, p := range t.Points {
		failures[i], opened[i], completed[i] = float64(p.Failures), float64(p.Opened), float64(p.Completed)
	}
	return failures, opened, completed
}

// defaultBuckets is the trend span when the filter has no start
var defaultBuckets = map[enums.TrendInterval]int{
	enums.TrendIntervalDay:   30,
	enums.TrendIntervalWeek:  12,
	enums.TrendIntervalMonth: 12,
}

// Trend counts events per bucket over the filter range. Missing end is now, missing start goes back
// 30 days, 12 weeks or 12 months. Every bucket of the range is present, empty ones with zeros.
func (s *Service) Trend(ctx context.Context, f Filter, interval enums.TrendInterval) (Trend, error) {
	if _, err := enums.ParseTrendInterval(interval.String()); err != nil {
		return Trend{}, err
	}
	to := f.To
	if to.IsZero() {
		to = s.now()
	}
	from := f.From
	if from.IsZero() {
		from = s.bucketStart(to.Add(-time.Nanosecond), interval)
		from = s.shift(from, interval, -(defaultBuckets[interval] - 1))
	}
	if !from.Before(to) {
		return Trend{}, fmt.Errorf("invalid trend range %s - %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	res := Trend{Interval: interval, From: from, To: to}
	index := map[int64]int{}
	for start := s.bucketStart(from, interval); start.Before(to); start = s.shift(start, interval, 1) {
		if len(res.Points) >= MaxTrendPoints {
			return Trend{}, fmt.Errorf("%w: more than %d %s buckets", ErrTooManyPoints, MaxTrendPoints, interval)
		}
		index[start.Unix()] = len(res.Points)
		res.Points = append(res.Points, TrendPoint{Start: start, Label: label(start, interval)})
	}

	qf := f
	qf.From, qf.To = from, to
	series := []struct {
		name persistence.Series
		inc  func(p *TrendPoint)
	}{
		{persistence.SeriesFailuresReported, func(p *TrendPoint) { p.Failures++ }},
		{persistence.SeriesWorkOrdersOpened, func(p *TrendPoint) { p.Opened++ }},
		{persistence.SeriesWorkOrdersCompleted, func(p *TrendPoint) { p.Completed++ }},
	}
	for _, sr := range series {
		times, err := s.store.EventTimes(ctx, sr.name, qf)
		if err != nil {
			return Trend{}, err
		}
		for _, ts := range times {
			i, ok := index[s.bucketStart(ts, interval).Unix()]
			if !ok {
				continue
			}
			sr.inc(&res.Points[i])
		}
	}
	return res, nil
}

// bucketStart truncates t to the start of its day, ISO week (Monday) or month in the service location
func (s *Service) bucketStart(t time.Time, interval enums.TrendInterval) time.Time {
	t = t.In(s.loc)
	switch interval {
	case enums.TrendIntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case enums.TrendIntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, s.loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	}
}

func (s *Service) shift(t time.Time, interval enums.TrendInterval, n int) time.Time {
	switch interval {
	case enums.TrendIntervalWeek:
		return t.AddDate(0, 0, 7*n)
	case enums.TrendIntervalMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

func label(t time.Time, interval enums.TrendInterval) string {
	if interval == enums.TrendIntervalMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}
