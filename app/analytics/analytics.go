// Package analytics turns aggregation queries of the store into chart-ready results: status distribution,
// mean time to repair, mean time between failures, Pareto of failure modes and trend series.
// The store does grouping and counting, this package does the math, zero-filling and ordering.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store

// Store defines aggregation queries analytics is built on
type Store interface {
	CountByStatus(ctx context.Context, e persistence.Entity, f persistence.Filter) ([]persistence.KeyCount, error)
	CountOverdue(ctx context.Context, f persistence.Filter, now time.Time) (workOrders, actions int, err error)
	RepairSamples(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error)
	FailureModeCounts(ctx context.Context, f persistence.Filter) ([]persistence.ModeCount, error)
	EventTimes(ctx context.Context, series persistence.Series, f persistence.Filter) ([]time.Time, error)
	AssetFailureCounts(ctx context.Context, f persistence.Filter) ([]persistence.AssetFailures, error)
}

// Filter narrows all analytics, alias of the store filter
type Filter = persistence.Filter

// Service computes analytics
type Service struct {
	store       Store
	now         func() time.Time
	loc         *time.Location
	concurrency int
}

// Option configures Service
type Option func(s *Service)

// WithClock sets time source
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets time zone trend buckets are aligned to, local by default
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithConcurrency sets how many aggregations Summary runs at once
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New makes analytics service
func New(store Store, opts ...Option) *Service {
	res := &Service{store: store, now: time.Now, loc: time.Local, concurrency: 4}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// summary parts, each computed by its own aggregation
const (
	PartStatus = "status"
	PartMTTR   = "mttr"
	PartMTBF   = "mtbf"
	PartPareto = "pareto"
	PartTrend  = "trend"
)

// Summary is everything the dashboard shows, computed for one filter
type Summary struct {
	Filter      Filter            `json:"filter"`
	GeneratedAt time.Time         `json:"generated_at"`
	Status      StatusCounts      `json:"status"`
	MTTR        MTTR              `json:"mttr"`
	MTBF        MTBF              `json:"mtbf"`
	Pareto      Pareto            `json:"pareto"`
	Trend       Trend             `json:"trend"`
	Errors      map[string]string `json:"errors,omitempty"` // part -> error, for parts which failed

	errs map[string]error
}

// Err returns the error of a failed part, nil if the part was computed
func (s Summary) Err(part string) error { return s.errs[part] }

// Summary runs all aggregations concurrently. A failed aggregation leaves its part empty and recorded
// in Errors, the rest of the summary is still returned. Error is returned only if every part failed.
func (s *Service) Summary(ctx context.Context, f Filter, interval enums.TrendInterval, metric enums.ParetoMetric) (Summary, error) {
	res := Summary{Filter: f, GeneratedAt: s.now()}

	var mu sync.Mutex
	wg := syncs.NewErrSizedGroup(s.concurrency, syncs.Preemptive)
	run := func(part string, fn func() error) {
		wg.Go(func() error {
			err := fn()
			if err == nil {
				return nil
			}
			log.Printf("[WARN] summary %s failed: %v", part, err)
			mu.Lock()
			defer mu.Unlock()
			if res.errs == nil {
				res.errs, res.Errors = map[string]error{}, map[string]string{}
			}
			res.errs[part], res.Errors[part] = err, err.Error()
			return nil
		})
	}

	// each part writes its own field only
	run(PartStatus, func() (err error) {
		res.Status, err = s.StatusCounts(ctx, f)
		return err
	})
	run(PartMTTR, func() (err error) {
		res.MTTR, err = s.MTTR(ctx, f)
		return err
	})
	run(PartMTBF, func() (err error) {
		res.MTBF, err = s.MTBF(ctx, f)
		return err
	})
	run(PartPareto, func() (err error) {
		res.Pareto, err = s.Pareto(ctx, f, metric)
		return err
	})
	run(PartTrend, func() (err error) {
		res.Trend, err = s.Trend(ctx, f, interval)
		return err
	})
	_ = wg.Wait() // parts record their own errors

	if parts := []string{PartStatus, PartMTTR, PartMTBF, PartPareto, PartTrend}; len(res.errs) == len(parts) {
		errs := make([]error, 0, len(parts))
		for _, p := range parts {
			errs = append(errs, fmt.Errorf("%s: %w", p, res.errs[p]))
		}
		return res, fmt.Errorf("failed to build summary: %w", errors.Join(errs...))
	}
	log.Printf("[DEBUG] summary built in %v, %d parts failed", s.now().Sub(res.GeneratedAt), len(res.errs))
	return res, nil
}

// Count is number of records in a status
type Count struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
}

// StatusCounts is distribution of work orders, failures and actions by status
type StatusCounts struct {
	WorkOrders        []Count `json:"work_orders"`
	Failures          []Count `json:"failures"`
	Actions           []Count `json:"actions"`
	ActiveWorkOrders  int     `json:"active_work_orders"`
	OverdueWorkOrders int     `json:"overdue_work_orders"`
	OpenFailures      int     `json:"open_failures"`
	OpenActions       int     `json:"open_actions"`
	OverdueActions    int     `json:"overdue_actions"`
}

// StatusCounts counts records by status. Every known status is present, in lifecycle order, zero if no records.
func (s *Service) StatusCounts(ctx context.Context, f Filter) (StatusCounts, error) {
	wo, err := s.store.CountByStatus(ctx, persistence.EntityWorkOrders, f)
	if err != nil {
		return StatusCounts{}, err
	}
	fr, err := s.store.CountByStatus(ctx, persistence.EntityFailures, f)
	if err != nil {
		return StatusCounts{}, err
	}
	ca, err := s.store.CountByStatus(ctx, persistence.EntityActions, f)
	if err != nil {
		return StatusCounts{}, err
	}
	overdueWO, overdueCA, err := s.store.CountOverdue(ctx, f, s.now())
	if err != nil {
		return StatusCounts{}, err
	}

	res := StatusCounts{
		WorkOrders:        fillCounts(wo, enums.WorkOrderStatusValues, enums.WorkOrderStatus.Title),
		Failures:          fillCounts(fr, enums.FailureStatusValues, enums.FailureStatus.Title),
		Actions:           fillCounts(ca, enums.ActionStatusValues, enums.ActionStatus.Title),
		OverdueWorkOrders: overdueWO,
		OverdueActions:    overdueCA,
	}
	for _, c := range res.WorkOrders {
		if enums.WorkOrderStatus(c.Status).IsActive() {
			res.ActiveWorkOrders += c.Count
		}
	}
	for _, c := range res.Failures {
		if c.Status != enums.FailureStatusClosed.String() {
			res.OpenFailures += c.Count
		}
	}
	for _, c := range res.Actions {
		if !enums.ActionStatus(c.Status).IsDone() {
			res.OpenActions += c.Count
		}
	}
	return res, nil
}

// fillCounts orders counts by known statuses, adding zeros for missing ones.
// Unknown statuses from the store are appended at the end.
func fillCounts[T ~string](counts []persistence.KeyCount, values []T, title func(T) string) []Count {
	byKey := make(map[string]int, len(counts))
	for _, c := range counts {
		byKey[c.Key] += c.Count
	}
	res := make([]Count, 0, len(values))
	for _, v := range values {
		res = append(res, Count{Status: string(v), Title: title(v), Count: byKey[string(v)]})
		delete(byKey, string(v))
	}
	for _, c := range counts {
		if n, ok := byKey[c.Key]; ok {
			log.Printf("[WARN] unknown status %q in counts", c.Key)
			res = append(res, Count{Status: c.Key, Title: c.Key, Count: n})
			delete(byKey, c.Key)
		}
	}
	return res
}
