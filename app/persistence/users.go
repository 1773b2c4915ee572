package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, name, email, role, active, created_at`

// CreateUser inserts a new user
func (s *SQLiteStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, u.Name, nullString(u.Email), u.Role.String(), u.Active, u.CreatedAt.Unix())
		if isUnique(err) {
			return fmt.Errorf("user %q: %w", u.Email, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// UpsertUser inserts a user or updates name, role and active flag of the user with the same email.
// Returns id of the stored user.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u User) (string, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var id string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET name = excluded.name, role = excluded.role, active = excluded.active`,
			u.ID, u.Name, nullString(u.Email), u.Role.String(), u.Active, u.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert user %q: %w", u.Email, err)
		}
		if err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE email = ?`, u.Email); err != nil {
			return fmt.Errorf("failed to read back user %q: %w", u.Email, err)
		}
		return nil
	})
	return id, err
}

// GetUser returns user by id
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return row.model(), nil
}

// ListUsers returns users sorted by name, optionally only active ones
func (s *SQLiteStore) ListUsers(ctx context.Context, activeOnly bool) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE`

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	res := make([]User, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// UpsertFailureMode inserts or replaces failure mode lookup entry
func (s *SQLiteStore) UpsertFailureMode(ctx context.Context, m FailureMode) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO failure_modes (code, name, category, description)
			VALUES (:code, :name, :category, :description)
			ON CONFLICT(code) DO UPDATE SET name = excluded.name, category = excluded.category,
			description = excluded.description`, m)
		if err != nil {
			return fmt.Errorf("failed to upsert failure mode %q: %w", m.Code, err)
		}
		return nil
	})
}

// UpsertFailureCause inserts or replaces failure cause lookup entry
func (s *SQLiteStore) UpsertFailureCause(ctx context.Context, c FailureCause) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO failure_causes (code, name, description)
			VALUES (:code, :name, :description)
			ON CONFLICT(code) DO UPDATE SET name = excluded.name, description = excluded.description`, c)
		if err != nil {
			return fmt.Errorf("failed to upsert failure cause %q: %w", c.Code, err)
		}
		return nil
	})
}

// ListFailureModes returns failure modes sorted by category and code
func (s *SQLiteStore) ListFailureModes(ctx context.Context) ([]FailureMode, error) {
	var res []FailureMode
	if err := s.db.SelectContext(ctx, &res,
		`SELECT code, name, category, description FROM failure_modes ORDER BY category, code`); err != nil {
		return nil, fmt.Errorf("failed to list failure modes: %w", err)
	}
	return res, nil
}

// ListFailureCauses returns failure causes sorted by code
func (s *SQLiteStore) ListFailureCauses(ctx context.Context) ([]FailureCause, error) {
	var res []FailureCause
	if err := s.db.SelectContext(ctx, &res, `SELECT code, name, description FROM failure_causes ORDER BY code`); err != nil {
		return nil, fmt.Errorf("failed to list failure causes: %w", err)
	}
	return res, nil
}

// GetFailureMode returns failure mode by code
func (s *SQLiteStore) GetFailureMode(ctx context.Context, code string) (FailureMode, error) {
	var res FailureMode
	err := s.db.GetContext(ctx, &res, `SELECT code, name, category, description FROM failure_modes WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return FailureMode{}, fmt.Errorf("failure mode %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return FailureMode{}, fmt.Errorf("failed to get failure mode %q: %w", code, err)
	}
	return res, nil
}

// GetFailureCause returns failure cause by code
func (s *SQLiteStore) GetFailureCause(ctx context.Context, code string) (FailureCause, error) {
	var res FailureCause
	err := s.db.GetContext(ctx, &res, `SELECT code, name, description FROM failure_causes WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return FailureCause{}, fmt.Errorf("failure cause %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return FailureCause{}, fmt.Errorf("failed to get failure cause %q: %w", code, err)
	}
	return res, nil
}
