package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Filter narrows analytics queries. Time range is half-open [From, To), zero bounds are unbounded.
type Filter struct {
	From     time.Time `json:"from,omitzero"`
	To       time.Time `json:"to,omitzero"`
	AssetID  string    `json:"asset_id,omitempty"`
	Category string    `json:"category,omitempty"`
}

// where builds conditions for the filter, tsCol is the timestamp column the range applies to.
// Queries using it must join assets as "a".
func (f Filter) where(tsCol string) (conds []string, args []any) {
	if !f.From.IsZero() {
		conds = append(conds, tsCol+" >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		conds = append(conds, tsCol+" < ?")
		args = append(args, f.To.Unix())
	}
	if f.AssetID != "" {
		conds = append(conds, "a.id = ?")
		args = append(args, f.AssetID)
	}
	if f.Category != "" {
		conds = append(conds, "a.category = ?")
		args = append(args, f.Category)
	}
	return conds, args
}

// Entity selects which records a status count runs over
type Entity string

// countable entities
const (
	EntityWorkOrders Entity = "work_orders"
	EntityFailures   Entity = "failures"
	EntityActions    Entity = "actions"
)

// Series selects which timestamps a trend is built from
type Series string

// trend series
const (
	SeriesFailuresReported    Series = "failures_reported"
	SeriesWorkOrdersOpened    Series = "work_orders_opened"
	SeriesWorkOrdersCompleted Series = "work_orders_completed"
)

// KeyCount is a single group of a count query
type KeyCount struct {
	Key   string `db:"label" json:"key"`
	Count int    `db:"count" json:"count"`
}

// RepairSample is a completed corrective work order used for repair time statistics
type RepairSample struct {
	WorkOrderID string    `json:"work_order_id"`
	AssetID     string    `json:"asset_id"`
	AssetTag    string    `json:"asset_tag"`
	AssetName   string    `json:"asset_name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ModeCount is number of failures and their downtime for a failure mode, empty Code for unclassified failures
type ModeCount struct {
	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
	Count    int    `db:"count" json:"count"`
	Downtime int    `db:"downtime" json:"downtime"`
}

// AssetFailures is number of failures of an asset in the filter range
type AssetFailures struct {
	AssetID     string    `json:"asset_id"`
	AssetTag    string    `json:"asset_tag"`
	AssetName   string    `json:"asset_name"`
	InServiceAt time.Time `json:"in_service_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
	Failures    int       `json:"failures"`
	Downtime    int       `json:"downtime"`
}

var statusCountQueries = map[Entity]struct{ query, tsCol string }{
	EntityWorkOrders: {`SELECT w.status AS label, COUNT(*) AS count FROM work_orders w JOIN assets a ON a.id = w.asset_id`,
		"w.created_at"},
	EntityFailures: {`SELECT f.status AS label, COUNT(*) AS count FROM failure_reports f JOIN assets a ON a.id = f.asset_id`,
		"f.occurred_at"},
	EntityActions: {`SELECT c.status AS label, COUNT(*) AS count FROM corrective_actions c
		JOIN failure_reports f ON f.id = c.failure_id JOIN assets a ON a.id = f.asset_id`, "c.created_at"},
}

// CountByStatus returns number of records per status, statuses without records are omitted
func (s *SQLiteStore) CountByStatus(ctx context.Context, e Entity, f Filter) ([]KeyCount, error) {
	q, ok := statusCountQueries[e]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", e)
	}
	conds, args := f.where(q.tsCol)
	query := q.query + whereClause(conds) + " GROUP BY label ORDER BY label"

	var res []KeyCount
	if err := s.db.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count %s by status: %w", e, err)
	}
	return res, nil
}

// CountOverdue returns number of active work orders and unfinished corrective actions due before now
func (s *SQLiteStore) CountOverdue(ctx context.Context, f Filter, now time.Time) (workOrders, actions int, err error) {
	// range applies to creation time, overdue is about current state
	conds, args := f.where("w.created_at")
	conds = append(conds, "w.status IN ('open', 'in_progress', 'on_hold')", "w.due_at IS NOT NULL", "w.due_at < ?")
	args = append(args, now.Unix())
	if err := s.db.GetContext(ctx, &workOrders, `SELECT COUNT(*) FROM work_orders w JOIN assets a ON a.id = w.asset_id`+
		whereClause(conds), args...); err != nil {
		return 0, 0, fmt.Errorf("failed to count overdue work orders: %w", err)
	}

	conds, args = f.where("c.created_at")
	conds = append(conds, "c.status NOT IN ('verified', 'cancelled')", "c.due_at IS NOT NULL", "c.due_at < ?")
	args = append(args, now.Unix())
	if err := s.db.GetContext(ctx, &actions, `SELECT COUNT(*) FROM corrective_actions c
		JOIN failure_reports f ON f.id = c.failure_id JOIN assets a ON a.id = f.asset_id`+whereClause(conds),
		args...); err != nil {
		return 0, 0, fmt.Errorf("failed to count overdue actions: %w", err)
	}
	return workOrders, actions, nil
}

// RepairSamples returns corrective work orders completed in the filter range with both start and completion times
func (s *SQLiteStore) RepairSamples(ctx context.Context, f Filter) ([]RepairSample, error) {
	conds, args := f.where("w.completed_at")
	conds = append(conds, "w.type = 'corrective'", "w.started_at IS NOT NULL", "w.completed_at IS NOT NULL",
		"w.status IN ('completed', 'verified', 'closed')")

	var rows []struct {
		ID          string `db:"id"`
		AssetID     string `db:"asset_id"`
		AssetTag    string `db:"asset_tag"`
		AssetName   string `db:"asset_name"`
		StartedAt   int64  `db:"started_at"`
		CompletedAt int64  `db:"completed_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT w.id, w.asset_id, a.tag AS asset_tag, a.name AS asset_name,
		w.started_at, w.completed_at FROM work_orders w JOIN assets a ON a.id = w.asset_id`+whereClause(conds)+
		` ORDER BY w.completed_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get repair samples: %w", err)
	}

	res := make([]RepairSample, 0, len(rows))
	for _, r := range rows {
		res = append(res, RepairSample{WorkOrderID: r.ID, AssetID: r.AssetID, AssetTag: r.AssetTag, AssetName: r.AssetName,
			StartedAt: time.Unix(r.StartedAt, 0), CompletedAt: time.Unix(r.CompletedAt, 0)})
	}
	return res, nil
}

// FailureModeCounts returns failures and downtime grouped by failure mode for failures occurred in the range
func (s *SQLiteStore) FailureModeCounts(ctx context.Context, f Filter) ([]ModeCount, error) {
	conds, args := f.where("f.occurred_at")
	var res []ModeCount
	err := s.db.SelectContext(ctx, &res, `SELECT COALESCE(f.failure_mode, '') AS code, COALESCE(MAX(m.name), '') AS name,
		COUNT(*) AS count, COALESCE(SUM(f.downtime_minutes), 0) AS downtime
		FROM failure_reports f JOIN assets a ON a.id = f.asset_id
		LEFT JOIN failure_modes m ON m.code = f.failure_mode`+whereClause(conds)+
		` GROUP BY COALESCE(f.failure_mode, '') ORDER BY code`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures by mode: %w", err)
	}
	return res, nil
}

var seriesColumns = map[Series]struct{ query, tsCol string }{
	SeriesFailuresReported: {`SELECT f.occurred_at FROM failure_reports f JOIN assets a ON a.id = f.asset_id`,
		"f.occurred_at"},
	SeriesWorkOrdersOpened: {`SELECT w.created_at FROM work_orders w JOIN assets a ON a.id = w.asset_id`,
		"w.created_at"},
	SeriesWorkOrdersCompleted: {`SELECT w.completed_at FROM work_orders w JOIN assets a ON a.id = w.asset_id`,
		"w.completed_at"},
}

// EventTimes returns timestamps of the series events in the filter range, oldest first
func (s *SQLiteStore) EventTimes(ctx context.Context, series Series, f Filter) ([]time.Time, error) {
	q, ok := seriesColumns[series]
	if !ok {
		return nil, fmt.Errorf("unknown series %q", series)
	}
	conds, args := f.where(q.tsCol)
	conds = append(conds, q.tsCol+" IS NOT NULL")

	var ts []int64
	if err := s.db.SelectContext(ctx, &ts, q.query+whereClause(conds)+" ORDER BY "+q.tsCol, args...); err != nil {
		return nil, fmt.Errorf("failed to get %s times: %w", series, err)
	}
	res := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		res = append(res, time.Unix(t, 0))
	}
	return res, nil
}

// AssetFailureCounts returns every asset matching the filter with the number of failures occurred in the range
func (s *SQLiteStore) AssetFailureCounts(ctx context.Context, f Filter) ([]AssetFailures, error) {
	// range goes to the join so assets without failures stay in the result
	var join []string
	var args []any
	if !f.From.IsZero() {
		join = append(join, "f.occurred_at >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		join = append(join, "f.occurred_at < ?")
		args = append(args, f.To.Unix())
	}
	conds, condArgs := Filter{AssetID: f.AssetID, Category: f.Category}.where("")
	args = append(args, condArgs...)

	joinClause := "LEFT JOIN failure_reports f ON f.asset_id = a.id"
	if len(join) > 0 {
		joinClause += " AND " + strings.Join(join, " AND ")
	}

	var rows []struct {
		ID          string        `db:"id"`
		Tag         string        `db:"tag"`
		Name        string        `db:"name"`
		InServiceAt sql.NullInt64 `db:"in_service_at"`
		CreatedAt   int64         `db:"created_at"`
		Failures    int           `db:"failures"`
		Downtime    int           `db:"downtime"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT a.id, a.tag, a.name, a.in_service_at, a.created_at,
		COUNT(f.id) AS failures, COALESCE(SUM(f.downtime_minutes), 0) AS downtime
		FROM assets a `+joinClause+whereClause(conds)+` GROUP BY a.id ORDER BY a.tag`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures per asset: %w", err)
	}

	res := make([]AssetFailures, 0, len(rows))
	for _, r := range rows {
		res = append(res, AssetFailures{AssetID: r.ID, AssetTag: r.Tag, AssetName: r.Name,
			InServiceAt: fromUnix(r.InServiceAt), CreatedAt: time.Unix(r.CreatedAt, 0), Failures: r.Failures,
			Downtime: r.Downtime})
	}
	return res, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
