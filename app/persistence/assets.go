package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const assetColumns = `id, tag, name, category, location, criticality, pm_schedule, in_service_at, created_at, updated_at`

// AssetQuery filters assets list
type AssetQuery struct {
	Category  string
	Search    string // matches tag, name or location
	Scheduled bool   // only assets with preventive maintenance schedule
}

// CreateAsset inserts a new asset, tag must be unique
func (s *SQLiteStore) CreateAsset(ctx context.Context, a Asset) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Tag, a.Name, a.Category, a.Location, a.Criticality.String(), a.PMSchedule,
			toUnix(a.InServiceAt), a.CreatedAt.Unix(), a.UpdatedAt.Unix())
		if isUnique(err) {
			return fmt.Errorf("asset %q: %w", a.Tag, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert asset %q: %w", a.Tag, err)
		}
		return nil
	})
}

// UpsertAsset inserts asset or updates the asset with the same tag, returns id of the stored asset
func (s *SQLiteStore) UpsertAsset(ctx context.Context, a Asset) (string, error) {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	var id string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tag) DO UPDATE SET name = excluded.name, category = excluded.category,
			location = excluded.location, criticality = excluded.criticality, pm_schedule = excluded.pm_schedule,
			in_service_at = excluded.in_service_at, updated_at = excluded.updated_at`,
			a.ID, a.Tag, a.Name, a.Category, a.Location, a.Criticality.String(), a.PMSchedule,
			toUnix(a.InServiceAt), a.CreatedAt.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert asset %q: %w", a.Tag, err)
		}
		if err := tx.GetContext(ctx, &id, `SELECT id FROM assets WHERE tag = ?`, a.Tag); err != nil {
			return fmt.Errorf("failed to read back asset %q: %w", a.Tag, err)
		}
		return nil
	})
	return id, err
}

// GetAsset returns asset by id
func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (Asset, error) {
	return s.getAsset(ctx, "id", id)
}

// GetAssetByTag returns asset by its unique tag
func (s *SQLiteStore) GetAssetByTag(ctx context.Context, tag string) (Asset, error) {
	return s.getAsset(ctx, "tag", tag)
}

func (s *SQLiteStore) getAsset(ctx context.Context, field, val string) (Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, `SELECT `+assetColumns+` FROM assets WHERE `+field+` = ?`, val)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("asset %s: %w", val, ErrNotFound)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("failed to get asset %s: %w", val, err)
	}
	return row.model(), nil
}

// ListAssets returns assets sorted by tag
func (s *SQLiteStore) ListAssets(ctx context.Context, q AssetQuery) ([]Asset, error) {
	var where []string
	var args []any
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.Search != "" {
		where = append(where, "(tag LIKE ? OR name LIKE ? OR location LIKE ?)")
		like := "%" + q.Search + "%"
		args = append(args, like, like, like)
	}
	if q.Scheduled {
		where = append(where, "pm_schedule != ''")
	}

	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY tag`

	var rows []assetRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	res := make([]Asset, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

// AssetCategories returns distinct non-empty asset categories
func (s *SQLiteStore) AssetCategories(ctx context.Context) ([]string, error) {
	var res []string
	if err := s.db.SelectContext(ctx, &res,
		`SELECT DISTINCT category FROM assets WHERE category != '' ORDER BY category`); err != nil {
		return nil, fmt.Errorf("failed to list asset categories: %w", err)
	}
	return res, nil
}
