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

const failureSelect = `SELECT f.id, f.number, f.asset_id, f.reported_by, f.title, f.description, f.severity, f.status,
	f.failure_mode, f.failure_cause, f.root_cause, f.downtime_minutes, f.occurred_at, f.closed_at, f.created_at,
	f.updated_at, a.tag AS asset_tag, a.name AS asset_name, u.name AS reporter_name, m.name AS mode_name,
	c.name AS cause_name
	FROM failure_reports f
	JOIN assets a ON a.id = f.asset_id
	LEFT JOIN users u ON u.id = f.reported_by
	LEFT JOIN failure_modes m ON m.code = f.failure_mode
	LEFT JOIN failure_causes c ON c.code = f.failure_cause`

// FailureQuery filters failure reports list
type FailureQuery struct {
	Statuses    []enums.FailureStatus
	Severity    enums.Severity
	AssetID     string
	FailureMode string
	Search      string // matches title, description or asset tag
	OpenOnly    bool   // anything not closed
	Limit       int
	Offset      int
}

// CreateFailure inserts a failure report with the next sequential number. If linked is not nil, the work order
// is created in the same transaction, referencing the new failure; its number and ids are set in place.
func (s *SQLiteStore) CreateFailure(ctx context.Context, f FailureReport, linked *WorkOrder, actorID string) (FailureReport, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		num, err := nextNumber(ctx, tx, "failure_reports")
		if err != nil {
			return err
		}
		f.Number = num
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		f.UpdatedAt = f.CreatedAt

		_, err = tx.ExecContext(ctx, `INSERT INTO failure_reports (id, number, asset_id, reported_by, title,
			description, severity, status, failure_mode, failure_cause, root_cause, downtime_minutes, occurred_at,
			closed_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Number, f.AssetID, nullString(f.ReportedBy), f.Title, f.Description, f.Severity.String(),
			f.Status.String(), nullString(f.FailureMode), nullString(f.FailureCause), f.RootCause, f.DowntimeMinutes,
			f.OccurredAt.Unix(), toUnix(f.ClosedAt), f.CreatedAt.Unix(), f.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert failure %s: %w", f.Ref(), err)
		}

		if linked == nil {
			return nil
		}
		linked.FailureID = f.ID
		if err := insertWorkOrder(ctx, tx, linked); err != nil {
			return err
		}
		return insertEvent(ctx, tx, WorkOrderEvent{WorkOrderID: linked.ID, ToStatus: linked.Status, ActorID: actorID,
			Note: "opened for " + f.Ref(), CreatedAt: linked.CreatedAt})
	})
	if err != nil {
		return FailureReport{}, err
	}
	return f, nil
}

// GetFailure returns failure report by id
func (s *SQLiteStore) GetFailure(ctx context.Context, id string) (FailureReport, error) {
	var row failureRow
	err := s.db.GetContext(ctx, &row, failureSelect+` WHERE f.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return FailureReport{}, fmt.Errorf("failure %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return FailureReport{}, fmt.Errorf("failed to get failure %s: %w", id, err)
	}
	return row.model(), nil
}

// ListFailures returns failure reports matching the query, most recent occurrence first
func (s *SQLiteStore) ListFailures(ctx context.Context, q FailureQuery) ([]FailureReport, error) {
	var where []string
	var args []any

	if len(q.Statuses) > 0 {
		where = append(where, "f.status IN (?)")
		args = append(args, statusStrings(q.Statuses))
	}
	if q.OpenOnly {
		where = append(where, "f.status != 'closed'")
	}
	if q.Severity != "" {
		where = append(where, "f.severity = ?")
		args = append(args, q.Severity.String())
	}
	if q.AssetID != "" {
		where = append(where, "f.asset_id = ?")
		args = append(args, q.AssetID)
	}
	if q.FailureMode != "" {
		where = append(where, "f.failure_mode = ?")
		args = append(args, q.FailureMode)
	}
	if q.Search != "" {
		where = append(where, "(f.title LIKE ? OR f.description LIKE ? OR a.tag LIKE ?)")
		like := "%" + q.Search + "%"
		args = append(args, like, like, like)
	}

	query := failureSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.occurred_at DESC, f.number DESC" + limitClause(q.Limit, q.Offset)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand failure query: %w", err)
	}

	var rows []failureRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	res := make([]FailureReport, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// UpdateFailure saves status and analysis fields of the failure if its status is still the expected one.
// Closing is refused with ErrPendingActions while any corrective action of the failure is neither verified
// nor cancelled.
func (s *SQLiteStore) UpdateFailure(ctx context.Context, f FailureReport, expected enums.FailureStatus) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	query := `UPDATE failure_reports SET status = ?, failure_mode = ?, failure_cause = ?,
		root_cause = ?, downtime_minutes = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []any{f.Status.String(), nullString(f.FailureMode), nullString(f.FailureCause), f.RootCause, f.DowntimeMinutes,
		toUnix(f.ClosedAt), f.UpdatedAt.Unix(), f.ID, expected.String()}
	if f.Status == enums.FailureStatusClosed {
		query += ` AND NOT EXISTS (SELECT 1 FROM corrective_actions WHERE failure_id = ? AND status NOT IN (?, ?))`
		args = append(args, f.ID, enums.ActionStatusVerified.String(), enums.ActionStatusCancelled.String())
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update failure %s: %w", f.ID, err)
		}
		if f.Status != enums.FailureStatusClosed {
			return checkUpdated(ctx, tx, res, "failure_reports", f.ID)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
		var pending int
		err = tx.GetContext(ctx, &pending, `SELECT COUNT(*) FROM corrective_actions WHERE failure_id = ? AND status NOT IN (?, ?)`,
			f.ID, enums.ActionStatusVerified.String(), enums.ActionStatusCancelled.String())
		if err != nil {
			return fmt.Errorf("failed to count pending actions of failure %s: %w", f.ID, err)
		}
		if pending > 0 {
			return fmt.Errorf("failure %s, %d pending: %w", f.ID, pending, ErrPendingActions)
		}
		return checkUpdated(ctx, tx, res, "failure_reports", f.ID)
	})
}
