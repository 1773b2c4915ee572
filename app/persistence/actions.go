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

const actionSelect = `SELECT c.id, c.failure_id, c.description, c.owner_id, c.status, c.due_at, c.implemented_at,
	c.verified_at, c.verification_note, c.created_at, c.updated_at,
	f.number AS failure_number, f.title AS failure_title, u.name AS owner_name
	FROM corrective_actions c
	JOIN failure_reports f ON f.id = c.failure_id
	LEFT JOIN users u ON u.id = c.owner_id`

// ActionQuery filters corrective actions list
type ActionQuery struct {
	FailureID string
	OwnerID   string
	Statuses  []enums.ActionStatus
	OpenOnly  bool      // not verified and not cancelled
	OverdueAt time.Time // only unfinished actions due before this time
	Limit     int
}

// CreateAction inserts a corrective action of a failure which is not closed, ErrFailureClosed otherwise.
// If advanceFrom is not empty and the failure is still in it, the failure moves to advanceTo in the same
// transaction.
func (s *SQLiteStore) CreateAction(ctx context.Context, a CorrectiveAction, advanceFrom, advanceTo enums.FailureStatus) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = a.CreatedAt
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO corrective_actions (id, failure_id, description, owner_id, status,
			due_at, implemented_at, verified_at, verification_note, created_at, updated_at)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM failure_reports WHERE id = ? AND status <> ?)`,
			a.ID, a.FailureID, a.Description, nullString(a.OwnerID), a.Status.String(), toUnix(a.DueAt),
			toUnix(a.ImplementedAt), toUnix(a.VerifiedAt), a.VerificationNote, a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
			a.FailureID, enums.FailureStatusClosed.String())
		if err != nil {
			return fmt.Errorf("failed to insert corrective action for failure %s: %w", a.FailureID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			if err := checkUpdated(ctx, tx, res, "failure_reports", a.FailureID); !errors.Is(err, ErrConflict) {
				return err // not found or failed check
			}
			return fmt.Errorf("failure %s: %w", a.FailureID, ErrFailureClosed)
		}
		if advanceFrom == "" {
			return nil
		}
		// zero rows is fine here, a concurrent action could advance the failure first
		if _, err := tx.ExecContext(ctx, `UPDATE failure_reports SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			advanceTo.String(), a.CreatedAt.Unix(), a.FailureID, advanceFrom.String()); err != nil {
			return fmt.Errorf("failed to advance failure %s: %w", a.FailureID, err)
		}
		return nil
	})
}

// GetAction returns corrective action by id
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (CorrectiveAction, error) {
	var row actionRow
	err := s.db.GetContext(ctx, &row, actionSelect+` WHERE c.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return CorrectiveAction{}, fmt.Errorf("corrective action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return CorrectiveAction{}, fmt.Errorf("failed to get corrective action %s: %w", id, err)
	}
	return row.model(), nil
}

// ListActions returns corrective actions matching the query, earliest due first
func (s *SQLiteStore) ListActions(ctx context.Context, q ActionQuery) ([]CorrectiveAction, error) {
	var where []string
	var args []any

	if q.FailureID != "" {
		where = append(where, "c.failure_id = ?")
		args = append(args, q.FailureID)
	}
	if q.OwnerID != "" {
		where = append(where, "c.owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		where = append(where, "c.status IN (?)")
		args = append(args, statusStrings(q.Statuses))
	}
	if q.OpenOnly || !q.OverdueAt.IsZero() {
		where = append(where, "c.status NOT IN ('verified', 'cancelled')")
	}
	if !q.OverdueAt.IsZero() {
		where = append(where, "c.due_at IS NOT NULL AND c.due_at < ?")
		args = append(args, q.OverdueAt.Unix())
	}

	query := actionSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.due_at IS NULL, c.due_at ASC, c.created_at ASC" + limitClause(q.Limit, 0)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand action query: %w", err)
	}

	var rows []actionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list corrective actions: %w", err)
	}
	res := make([]CorrectiveAction, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// UpdateAction saves status, verification and due fields of the action if its status is still the expected one
func (s *SQLiteStore) UpdateAction(ctx context.Context, a CorrectiveAction, expected enums.ActionStatus) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE corrective_actions SET status = ?, owner_id = ?, due_at = ?,
			implemented_at = ?, verified_at = ?, verification_note = ?, updated_at = ? WHERE id = ? AND status = ?`,
			a.Status.String(), nullString(a.OwnerID), toUnix(a.DueAt), toUnix(a.ImplementedAt), toUnix(a.VerifiedAt),
			a.VerificationNote, a.UpdatedAt.Unix(), a.ID, expected.String())
		if err != nil {
			return fmt.Errorf("failed to update corrective action %s: %w", a.ID, err)
		}
		return checkUpdated(ctx, tx, res, "corrective_actions", a.ID)
	})
}
