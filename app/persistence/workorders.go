package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/fracas/app/enums"
)

// ErrConflict is returned when a record was changed by someone else between read and update
var ErrConflict = errors.New("record changed concurrently")

const workOrderSelect = `SELECT w.id, w.number, w.title, w.description, w.type, w.priority, w.status, w.asset_id,
	w.failure_id, w.assignee_id, w.requested_by, w.resolution, w.labor_hours, w.due_at, w.started_at,
	w.completed_at, w.verified_at, w.closed_at, w.created_at, w.updated_at,
	a.tag AS asset_tag, a.name AS asset_name, f.number AS failure_number,
	u.name AS assignee_name, r.name AS requester_name
	FROM work_orders w
	JOIN assets a ON a.id = w.asset_id
	LEFT JOIN failure_reports f ON f.id = w.failure_id
	LEFT JOIN users u ON u.id = w.assignee_id
	LEFT JOIN users r ON r.id = w.requested_by`

// work order list sort orders
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortPriority = "priority"
	SortDue      = "due"
)

var workOrderSorts = map[string]string{
	SortNewest: "w.number DESC",
	SortOldest: "w.number ASC",
	SortPriority: `CASE w.priority WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END DESC,
		w.number DESC`,
	SortDue: "w.due_at IS NULL, w.due_at ASC, w.number ASC",
}

// WorkOrderQuery filters and orders work orders list
type WorkOrderQuery struct {
	Statuses   []enums.WorkOrderStatus
	Type       enums.WorkOrderType
	Priority   enums.Priority
	AssetID    string
	AssigneeID string
	FailureID  string
	Search     string    // matches title, description or asset tag
	ActiveOnly bool      // open, in progress or on hold
	OverdueAt  time.Time // only active orders due before this time
	Sort       string    // one of Sort* constants, newest by default
	Limit      int
	Offset     int
}

// CreateWorkOrder inserts a work order with the next sequential number and records its initial status event
func (s *SQLiteStore) CreateWorkOrder(ctx context.Context, wo WorkOrder, actorID, note string) (WorkOrder, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertWorkOrder(ctx, tx, &wo); err != nil {
			return err
		}
		return insertEvent(ctx, tx, WorkOrderEvent{WorkOrderID: wo.ID, ToStatus: wo.Status, ActorID: actorID,
			Note: note, CreatedAt: wo.CreatedAt})
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// insertWorkOrder sets number and timestamps of wo and inserts it
func insertWorkOrder(ctx context.Context, tx *sqlx.Tx, wo *WorkOrder) error {
	num, err := nextNumber(ctx, tx, "work_orders")
	if err != nil {
		return err
	}
	wo.Number = num
	if wo.CreatedAt.IsZero() {
		wo.CreatedAt = time.Now()
	}
	wo.UpdatedAt = wo.CreatedAt

	_, err = tx.ExecContext(ctx, `INSERT INTO work_orders (id, number, title, description, type, priority, status,
		asset_id, failure_id, assignee_id, requested_by, resolution, labor_hours, due_at, started_at, completed_at,
		verified_at, closed_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wo.ID, wo.Number, wo.Title, wo.Description, wo.Type.String(), wo.Priority.String(), wo.Status.String(),
		wo.AssetID, nullString(wo.FailureID), nullString(wo.AssigneeID), nullString(wo.RequestedBy), wo.Resolution,
		wo.LaborHours, toUnix(wo.DueAt), toUnix(wo.StartedAt), toUnix(wo.CompletedAt), toUnix(wo.VerifiedAt),
		toUnix(wo.ClosedAt), wo.CreatedAt.Unix(), wo.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert work order %s: %w", wo.Ref(), err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, ev WorkOrderEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO work_order_events (work_order_id, from_status, to_status, actor_id,
		note, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.WorkOrderID, ev.FromStatus.String(), ev.ToStatus.String(), nullString(ev.ActorID), ev.Note, ev.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record event for work order %s: %w", ev.WorkOrderID, err)
	}
	return nil
}

// GetWorkOrder returns work order by id
func (s *SQLiteStore) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	var row workOrderRow
	err := s.db.GetContext(ctx, &row, workOrderSelect+` WHERE w.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkOrder{}, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return WorkOrder{}, fmt.Errorf("failed to get work order %s: %w", id, err)
	}
	return row.model(), nil
}

// ListWorkOrders returns work orders matching the query
func (s *SQLiteStore) ListWorkOrders(ctx context.Context, q WorkOrderQuery) ([]WorkOrder, error) {
	var where []string
	var args []any

	if len(q.Statuses) > 0 {
		where = append(where, "w.status IN (?)")
		args = append(args, statusStrings(q.Statuses))
	}
	if q.ActiveOnly || !q.OverdueAt.IsZero() {
		where = append(where, "w.status IN ('open', 'in_progress', 'on_hold')")
	}
	if !q.OverdueAt.IsZero() {
		where = append(where, "w.due_at IS NOT NULL AND w.due_at < ?")
		args = append(args, q.OverdueAt.Unix())
	}
	if q.Type != "" {
		where = append(where, "w.type = ?")
		args = append(args, q.Type.String())
	}
	if q.Priority != "" {
		where = append(where, "w.priority = ?")
		args = append(args, q.Priority.String())
	}
	if q.AssetID != "" {
		where = append(where, "w.asset_id = ?")
		args = append(args, q.AssetID)
	}
	if q.AssigneeID != "" {
		where = append(where, "w.assignee_id = ?")
		args = append(args, q.AssigneeID)
	}
	if q.FailureID != "" {
		where = append(where, "w.failure_id = ?")
		args = append(args, q.FailureID)
	}
	if q.Search != "" {
		where = append(where, "(w.title LIKE ? OR w.description LIKE ? OR a.tag LIKE ?)")
		like := "%" + q.Search + "%"
		args = append(args, like, like, like)
	}

	query := workOrderSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	order, ok := workOrderSorts[q.Sort]
	if !ok {
		order = workOrderSorts[SortNewest]
	}
	query += " ORDER BY " + order
	query += limitClause(q.Limit, q.Offset)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand work order query: %w", err)
	}

	var rows []workOrderRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	res := make([]WorkOrder, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// UpdateWorkOrder saves mutable fields of the work order if its status is still the expected one,
// appending ev to the history in the same transaction. Empty ev.ToStatus skips the history entry.
func (s *SQLiteStore) UpdateWorkOrder(ctx context.Context, wo WorkOrder, expected enums.WorkOrderStatus, ev WorkOrderEvent) error {
	if wo.UpdatedAt.IsZero() {
		wo.UpdatedAt = time.Now()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE work_orders SET title = ?, description = ?, priority = ?, status = ?,
			assignee_id = ?, resolution = ?, labor_hours = ?, due_at = ?, started_at = ?, completed_at = ?,
			verified_at = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			wo.Title, wo.Description, wo.Priority.String(), wo.Status.String(), nullString(wo.AssigneeID),
			wo.Resolution, wo.LaborHours, toUnix(wo.DueAt), toUnix(wo.StartedAt), toUnix(wo.CompletedAt),
			toUnix(wo.VerifiedAt), toUnix(wo.ClosedAt), wo.UpdatedAt.Unix(), wo.ID, expected.String())
		if err != nil {
			return fmt.Errorf("failed to update work order %s: %w", wo.ID, err)
		}
		if err := checkUpdated(ctx, tx, res, "work_orders", wo.ID); err != nil {
			return err
		}
		if ev.ToStatus == "" {
			return nil
		}
		ev.WorkOrderID = wo.ID
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = wo.UpdatedAt
		}
		return insertEvent(ctx, tx, ev)
	})
}

// WorkOrderEvents returns status history of the work order, oldest first
func (s *SQLiteStore) WorkOrderEvents(ctx context.Context, workOrderID string) ([]WorkOrderEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `SELECT e.id, e.work_order_id, e.from_status, e.to_status, e.actor_id,
		u.name AS actor_name, e.note, e.created_at
		FROM work_order_events e LEFT JOIN users u ON u.id = e.actor_id
		WHERE e.work_order_id = ? ORDER BY e.id`, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of work order %s: %w", workOrderID, err)
	}
	res := make([]WorkOrderEvent, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// LastCompletedAt returns the latest completion time of the asset's work orders of the given type,
// zero time if none was completed
func (s *SQLiteStore) LastCompletedAt(ctx context.Context, assetID string, tp enums.WorkOrderType) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.GetContext(ctx, &ts, `SELECT MAX(completed_at) FROM work_orders
		WHERE asset_id = ? AND type = ? AND completed_at IS NOT NULL AND status IN ('completed', 'verified', 'closed')`,
		assetID, tp.String())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last completion of %s work orders for %s: %w", tp, assetID, err)
	}
	return fromUnix(ts), nil
}

// checkUpdated turns zero affected rows into ErrNotFound or ErrConflict
func checkUpdated(ctx context.Context, tx *sqlx.Tx, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to check %s %s: %w", table, id, err)
	}
	if exists == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func statusStrings[T ~string](vals []T) []string {
	res := make([]string, 0, len(vals))
	for _, v := range vals {
		res = append(res, string(v))
	}
	return res
}
