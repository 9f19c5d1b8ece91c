package remote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kandelab/stocktake/internal/db"
	"github.com/kandelab/stocktake/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. Confirm updates fire
// once per matched tag during a live scan, so they lead the list.
var preparedStatements = map[string]string{
	"update_item_inventoried": `UPDATE items SET is_inventoried = $1, updated_at = now() WHERE id = $2`,
	"batch_update_inventoried": `UPDATE items SET is_inventoried = $1, updated_at = now() WHERE id = ANY($2)`,
	"fetch_items_by_scope": `SELECT i.id, i.tag_id, i.master_id, i.is_inventoried, i.created_at, i.updated_at,
		m.id, m.name, COALESCE(m.notes, ''), COALESCE(m.extra, ''), COALESCE(m.product_code, ''), COALESCE(m.image_url, ''), m.target, m.created_at, m.updated_at
		FROM items i JOIN inventory_masters m ON m.id = i.master_id WHERE m.target = $1 ORDER BY i.created_at`,
	"find_item_by_tag": `SELECT i.id, i.tag_id, i.master_id, i.is_inventoried, i.created_at, i.updated_at,
		m.id, m.name, COALESCE(m.notes, ''), COALESCE(m.extra, ''), COALESCE(m.product_code, ''), COALESCE(m.image_url, ''), m.target, m.created_at, m.updated_at
		FROM items i JOIN inventory_masters m ON m.id = i.master_id WHERE i.tag_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests to substitute
// pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS inventory_masters (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	notes        TEXT,
	extra        TEXT,
	product_code TEXT,
	image_url    TEXT,
	target       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS items (
	id             TEXT PRIMARY KEY,
	tag_id         TEXT NOT NULL UNIQUE,
	master_id      TEXT NOT NULL REFERENCES inventory_masters(id),
	is_inventoried BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_masters_target ON inventory_masters(target);
CREATE INDEX IF NOT EXISTS idx_items_master_id ON items(master_id);
`

// Migrate creates the catalog tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// FetchItemsByScope loads all items joined with their masters for a scope.
// Rows with an empty tag are skipped with a warning instead of failing the
// whole load.
func (s *PostgresStore) FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["fetch_items_by_scope"], string(scope))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: fetch items for scope %s", scope)
	}
	defer rows.Close()

	var (
		out      []model.ItemRow
		warnings []model.RowWarning
		idx      int
	)
	for rows.Next() {
		row, err := scanItemRow(rows)
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
		return nil, nil, eris.Wrapf(err, "postgres: fetch items for scope %s", scope)
	}
	return out, warnings, nil
}

func scanItemRow(rows pgx.Rows) (model.ItemRow, error) {
	var (
		item   model.TrackedItem
		master model.CatalogEntry
		target string
	)
	err := rows.Scan(
		&item.ID, &item.TagID, &item.MasterID, &item.Inventoried, &item.CreatedAt, &item.UpdatedAt,
		&master.ID, &master.Name, &master.Notes, &master.Extra, &master.ProductCode, &master.ImageURL,
		&target, &master.CreatedAt, &master.UpdatedAt,
	)
	if err != nil {
		return model.ItemRow{}, err
	}
	master.Scope = model.TargetScope(target)
	return model.ItemRow{Item: item, Master: &master}, nil
}

// UpdateItemInventoried flips the inventoried flag of a single item.
func (s *PostgresStore) UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["update_item_inventoried"], inventoried, itemID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item %s", itemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: item %s", itemID)
	}
	return nil
}

// BatchUpdateInventoried flips the inventoried flag for the given item IDs.
func (s *PostgresStore) BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, preparedStatements["batch_update_inventoried"], inventoried, itemIDs)
	return eris.Wrapf(err, "postgres: batch update %d items", len(itemIDs))
}

// ListMasters returns catalog entries, optionally filtered by scope.
func (s *PostgresStore) ListMasters(ctx context.Context, scope model.TargetScope) ([]model.CatalogEntry, error) {
	sql := `SELECT id, name, COALESCE(notes, ''), COALESCE(extra, ''), COALESCE(product_code, ''), COALESCE(image_url, ''), target, created_at, updated_at
		FROM inventory_masters`
	var args []any
	if scope != "" {
		sql += ` WHERE target = $1`
		args = append(args, string(scope))
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list masters")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan master")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list masters")
}

func scanMaster(row pgx.Row) (model.CatalogEntry, error) {
	var (
		m      model.CatalogEntry
		target string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Notes, &m.Extra, &m.ProductCode, &m.ImageURL, &target, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.Scope = model.TargetScope(target)
	return m, nil
}

// GetMaster fetches a single catalog entry by ID.
func (s *PostgresStore) GetMaster(ctx context.Context, id string) (*model.CatalogEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, COALESCE(notes, ''), COALESCE(extra, ''), COALESCE(product_code, ''), COALESCE(image_url, ''), target, created_at, updated_at
		FROM inventory_masters WHERE id = $1`, id)
	m, err := scanMaster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: master %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get master %s", id)
	}
	return &m, nil
}

// CreateMaster inserts a new catalog entry.
func (s *PostgresStore) CreateMaster(ctx context.Context, p model.MasterParams) (*model.CatalogEntry, error) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO inventory_masters (id, name, notes, extra, product_code, image_url, target, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Name, m.Notes, m.Extra, m.ProductCode, m.ImageURL, string(m.Scope), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create master")
	}
	return &m, nil
}

// UpdateMaster rewrites the writable fields of a catalog entry.
func (s *PostgresStore) UpdateMaster(ctx context.Context, id string, p model.MasterParams) (*model.CatalogEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE inventory_masters SET name = $1, notes = $2, extra = $3, product_code = $4, image_url = $5, target = $6, updated_at = now()
		 WHERE id = $7`,
		p.Name, p.Notes, p.Extra, p.ProductCode, p.ImageURL, string(p.Scope), id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update master %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: master %s", id)
	}
	return s.GetMaster(ctx, id)
}

// DeleteMaster removes a catalog entry.
func (s *PostgresStore) DeleteMaster(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inventory_masters WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete master %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: master %s", id)
	}
	return nil
}

// CreateItem registers one tag against a master.
func (s *PostgresStore) CreateItem(ctx context.Context, tagID, masterID string) (*model.TrackedItem, error) {
	now := time.Now().UTC()
	item := model.TrackedItem{
		ID:        uuid.NewString(),
		TagID:     tagID,
		MasterID:  masterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, tag_id, master_id, is_inventoried, created_at, updated_at) VALUES ($1, $2, $3, false, $4, $5)`,
		item.ID, item.TagID, item.MasterID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create item for tag %s", tagID)
	}
	return &item, nil
}

// BulkCreateItems registers many tags against one master via COPY.
func (s *PostgresStore) BulkCreateItems(ctx context.Context, masterID string, tagIDs []string) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(tagIDs))
	for _, tag := range tagIDs {
		rows = append(rows, []any{uuid.NewString(), tag, masterID, false, now, now})
	}
	return db.CopyFrom(ctx, s.pool, "items",
		[]string{"id", "tag_id", "master_id", "is_inventoried", "created_at", "updated_at"}, rows)
}

// FindItemByTag looks up one item with its joined master.
func (s *PostgresStore) FindItemByTag(ctx context.Context, tagID string) (*model.ItemRow, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["find_item_by_tag"], tagID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find item by tag %s", tagID)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: find item by tag %s", tagID)
		}
		return nil, eris.Wrapf(ErrNotFound, "postgres: tag %s", tagID)
	}
	row, err := scanItemRow(rows)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find item by tag %s", tagID)
	}
	return &row, nil
}

// FetchStockLevels returns per-master item counts for the storefront.
func (s *PostgresStore) FetchStockLevels(ctx context.Context) ([]model.MasterStock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.name, COALESCE(m.notes, ''), COALESCE(m.extra, ''), COALESCE(m.product_code, ''), COALESCE(m.image_url, ''), m.target, m.created_at, m.updated_at,
			COUNT(i.id), COUNT(i.id) FILTER (WHERE i.is_inventoried)
		 FROM inventory_masters m LEFT JOIN items i ON i.master_id = m.id
		 GROUP BY m.id ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch stock levels")
	}
	defer rows.Close()

	var out []model.MasterStock
	for rows.Next() {
		var (
			st     model.MasterStock
			target string
		)
		err := rows.Scan(
			&st.Master.ID, &st.Master.Name, &st.Master.Notes, &st.Master.Extra, &st.Master.ProductCode,
			&st.Master.ImageURL, &target, &st.Master.CreatedAt, &st.Master.UpdatedAt,
			&st.ItemCount, &st.InventoriedCount,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stock level")
		}
		st.Master.Scope = model.TargetScope(target)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: fetch stock levels")
}
