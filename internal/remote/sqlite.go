package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kandelab/stocktake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs offline
// stocktake sessions on the handheld bridge where no network is available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS inventory_masters (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	extra        TEXT NOT NULL DEFAULT '',
	product_code TEXT NOT NULL DEFAULT '',
	image_url    TEXT NOT NULL DEFAULT '',
	target       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id             TEXT PRIMARY KEY,
	tag_id         TEXT NOT NULL UNIQUE,
	master_id      TEXT NOT NULL REFERENCES inventory_masters(id),
	is_inventoried INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_masters_target ON inventory_masters(target);
CREATE INDEX IF NOT EXISTS idx_items_master_id ON items(master_id);
`

// Migrate creates the catalog tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const sqliteItemJoin = `SELECT i.id, i.tag_id, i.master_id, i.is_inventoried, i.created_at, i.updated_at,
	m.id, m.name, m.notes, m.extra, m.product_code, m.image_url, m.target, m.created_at, m.updated_at
	FROM items i JOIN inventory_masters m ON m.id = i.master_id`

func scanSQLiteItemRow(scan func(dest ...any) error) (model.ItemRow, error) {
	var (
		item                       model.TrackedItem
		master                     model.CatalogEntry
		inv                        int
		iCreated, iUpdated, target string
		mCreated, mUpdated         string
	)
	err := scan(
		&item.ID, &item.TagID, &item.MasterID, &inv, &iCreated, &iUpdated,
		&master.ID, &master.Name, &master.Notes, &master.Extra, &master.ProductCode, &master.ImageURL,
		&target, &mCreated, &mUpdated,
	)
	if err != nil {
		return model.ItemRow{}, err
	}
	item.Inventoried = inv != 0
	item.CreatedAt = parseRFC3339(iCreated)
	item.UpdatedAt = parseRFC3339(iUpdated)
	master.Scope = model.TargetScope(target)
	master.CreatedAt = parseRFC3339(mCreated)
	master.UpdatedAt = parseRFC3339(mUpdated)
	return model.ItemRow{Item: item, Master: &master}, nil
}

// FetchItemsByScope loads all items joined with their masters for a scope.
func (s *SQLiteStore) FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error) {
	rows, err := s.db.QueryContext(ctx, sqliteItemJoin+` WHERE m.target = ? ORDER BY i.created_at`, string(scope))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: fetch items for scope %s", scope)
	}
	defer rows.Close()

	var (
		out      []model.ItemRow
		warnings []model.RowWarning
		idx      int
	)
	for rows.Next() {
		row, err := scanSQLiteItemRow(rows.Scan)
		if err != nil {
			warnings = append(warnings, model.RowWarning{Index: idx, Reason: err.Error()})
			idx++
			continue
		}
		if row.Item.TagID == "" {
			warnings = append(warnings, model.RowWarning{Index: idx, Reason: "empty tag_id"})
			idx++
			continue
		}
		out = append(out, row)
		idx++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: fetch items for scope %s", scope)
	}
	return out, warnings, nil
}

// UpdateItemInventoried flips the inventoried flag of a single item.
func (s *SQLiteStore) UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET is_inventoried = ?, updated_at = ? WHERE id = ?`,
		boolToInt(inventoried), nowRFC3339(), itemID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item %s", itemID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: item %s", itemID)
	}
	return nil
}

// BatchUpdateInventoried flips the inventoried flag for the given item IDs
// in a single statement.
func (s *SQLiteStore) BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error {
	if len(itemIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, 0, len(itemIDs)+2)
	args = append(args, boolToInt(inventoried), nowRFC3339())
	for _, id := range itemIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE items SET is_inventoried = ?, updated_at = ? WHERE id IN (%s)`, placeholders)
	_, err := s.db.ExecContext(ctx, query, args...)
	return eris.Wrapf(err, "sqlite: batch update %d items", len(itemIDs))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const sqliteMasterSelect = `SELECT id, name, notes, extra, product_code, image_url, target, created_at, updated_at FROM inventory_masters`

func scanSQLiteMaster(scan func(dest ...any) error) (model.CatalogEntry, error) {
	var (
		m                        model.CatalogEntry
		target, created, updated string
	)
	err := scan(&m.ID, &m.Name, &m.Notes, &m.Extra, &m.ProductCode, &m.ImageURL, &target, &created, &updated)
	if err != nil {
		return m, err
	}
	m.Scope = model.TargetScope(target)
	m.CreatedAt = parseRFC3339(created)
	m.UpdatedAt = parseRFC3339(updated)
	return m, nil
}

// ListMasters returns catalog entries, optionally filtered by scope.
func (s *SQLiteStore) ListMasters(ctx context.Context, scope model.TargetScope) ([]model.CatalogEntry, error) {
	query := sqliteMasterSelect
	var args []any
	if scope != "" {
		query += ` WHERE target = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list masters")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		m, err := scanSQLiteMaster(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan master")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list masters")
}

// GetMaster fetches one catalog entry by ID.
func (s *SQLiteStore) GetMaster(ctx context.Context, id string) (*model.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, sqliteMasterSelect+` WHERE id = ?`, id)
	m, err := scanSQLiteMaster(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: master %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get master %s", id)
	}
	return &m, nil
}

// CreateMaster inserts a new catalog entry.
func (s *SQLiteStore) CreateMaster(ctx context.Context, p model.MasterParams) (*model.CatalogEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	m := model.CatalogEntry{
		ID:          uuid.NewString(),
		Name:        p.Name,
		Notes:       p.Notes,
		Extra:       p.Extra,
		ProductCode: p.ProductCode,
		ImageURL:    p.ImageURL,
		Scope:       p.Scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_masters (id, name, notes, extra, product_code, image_url, target, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Notes, m.Extra, m.ProductCode, m.ImageURL, string(m.Scope),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create master")
	}
	return &m, nil
}

// UpdateMaster rewrites the writable fields of a catalog entry.
func (s *SQLiteStore) UpdateMaster(ctx context.Context, id string, p model.MasterParams) (*model.CatalogEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventory_masters SET name = ?, notes = ?, extra = ?, product_code = ?, image_url = ?, target = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Notes, p.Extra, p.ProductCode, p.ImageURL, string(p.Scope), nowRFC3339(), id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update master %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: master %s", id)
	}
	return s.GetMaster(ctx, id)
}

// DeleteMaster removes a catalog entry.
func (s *SQLiteStore) DeleteMaster(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_masters WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete master %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: master %s", id)
	}
	return nil
}

// CreateItem registers one tag against a master.
func (s *SQLiteStore) CreateItem(ctx context.Context, tagID, masterID string) (*model.TrackedItem, error) {
	now := time.Now().UTC()
	item := model.TrackedItem{
		ID:        uuid.NewString(),
		TagID:     tagID,
		MasterID:  masterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, tag_id, master_id, is_inventoried, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		item.ID, item.TagID, item.MasterID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create item for tag %s", tagID)
	}
	return &item, nil
}

// BulkCreateItems registers many tags against one master in one transaction.
func (s *SQLiteStore) BulkCreateItems(ctx context.Context, masterID string, tagIDs []string) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, tag_id, master_id, is_inventoried, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close()

	now := nowRFC3339()
	var n int64
	for _, tag := range tagIDs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), tag, masterID, now, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk insert tag %s", tag)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return n, nil
}

// FindItemByTag looks up one item with its joined master.
func (s *SQLiteStore) FindItemByTag(ctx context.Context, tagID string) (*model.ItemRow, error) {
	row := s.db.QueryRowContext(ctx, sqliteItemJoin+` WHERE i.tag_id = ?`, tagID)
	out, err := scanSQLiteItemRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: tag %s", tagID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find item by tag %s", tagID)
	}
	return &out, nil
}

// FetchStockLevels returns per-master item counts for the storefront.
func (s *SQLiteStore) FetchStockLevels(ctx context.Context) ([]model.MasterStock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.name, m.notes, m.extra, m.product_code, m.image_url, m.target, m.created_at, m.updated_at,
			COUNT(i.id), COALESCE(SUM(i.is_inventoried), 0)
		 FROM inventory_masters m LEFT JOIN items i ON i.master_id = m.id
		 GROUP BY m.id ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch stock levels")
	}
	defer rows.Close()

	var out []model.MasterStock
	for rows.Next() {
		var (
			st                       model.MasterStock
			target, created, updated string
		)
		err := rows.Scan(
			&st.Master.ID, &st.Master.Name, &st.Master.Notes, &st.Master.Extra, &st.Master.ProductCode,
			&st.Master.ImageURL, &target, &created, &updated,
			&st.ItemCount, &st.InventoriedCount,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stock level")
		}
		st.Master.Scope = model.TargetScope(target)
		st.Master.CreatedAt = parseRFC3339(created)
		st.Master.UpdatedAt = parseRFC3339(updated)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch stock levels")
}

var _ Store = (*SQLiteStore)(nil)
