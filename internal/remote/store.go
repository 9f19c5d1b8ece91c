// Package remote defines the store adapter boundary of the reconciliation
// core. The catalog and item tables live behind a generic fetch / update /
// batch-update interface with interchangeable Postgres, PostgREST and
// SQLite implementations.
package remote

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kandelab/stocktake/internal/model"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = eris.New("remote: not found")

// Store is the persistence boundary. All methods are safe for concurrent
// use; row-level updates keyed by distinct item IDs do not conflict with
// each other.
type Store interface {
	// FetchItemsByScope returns every tracked item whose joined catalog
	// entry belongs to scope. Rows that fail per-row validation are skipped
	// and reported as warnings; zero rows is a valid, empty result.
	FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error)

	// UpdateItemInventoried flips the inventoried flag of a single item.
	UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error

	// BatchUpdateInventoried flips the inventoried flag for all given item
	// IDs in one call. The update is all-or-nothing per batch.
	BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error

	// Catalog management.
	ListMasters(ctx context.Context, scope model.TargetScope) ([]model.CatalogEntry, error)
	GetMaster(ctx context.Context, id string) (*model.CatalogEntry, error)
	CreateMaster(ctx context.Context, p model.MasterParams) (*model.CatalogEntry, error)
	UpdateMaster(ctx context.Context, id string, p model.MasterParams) (*model.CatalogEntry, error)
	DeleteMaster(ctx context.Context, id string) error

	// Item registration and lookup.
	CreateItem(ctx context.Context, tagID, masterID string) (*model.TrackedItem, error)
	BulkCreateItems(ctx context.Context, masterID string, tagIDs []string) (int64, error)
	FindItemByTag(ctx context.Context, tagID string) (*model.ItemRow, error)

	// FetchStockLevels returns per-master item counts for the storefront.
	FetchStockLevels(ctx context.Context) ([]model.MasterStock, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
