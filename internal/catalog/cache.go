// Package catalog caches the expected tag set and item metadata for the
// active target scope.
package catalog

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
)

// Fetcher is the slice of the remote store the cache needs.
type Fetcher interface {
	FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error)
}

// LoadSummary reports the outcome of a catalog load.
type LoadSummary struct {
	Scope    model.TargetScope  `json:"scope"`
	Items    int                `json:"items"`
	Masters  int                `json:"masters"`
	Warnings []model.RowWarning `json:"warnings,omitempty"`
	// Stale is true when the load completed after the selected scope had
	// already moved on; its data was discarded.
	Stale bool `json:"stale,omitempty"`
}

// Cache holds the master index for the currently selected scope. The index
// is replaced atomically on a successful load and retained unchanged on
// failure. Loads may overlap; only the result matching the scope selected
// at resolution time is applied (last-scope-wins, not last-response-wins).
type Cache struct {
	fetcher Fetcher

	mu       sync.Mutex
	selected model.TargetScope
	view     *View
}

// NewCache creates a cache with an empty index.
func NewCache(f Fetcher) *Cache {
	return &Cache{fetcher: f, view: emptyView("")}
}

// Selected returns the currently selected scope.
func (c *Cache) Selected() model.TargetScope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// View returns an independent snapshot of the current index.
func (c *Cache) View() *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.clone()
}

// LoadForScope fetches all items for scope and swaps the index in on
// success. Zero rows is a valid empty catalog. On failure the previous
// index, possibly empty, is retained and the error surfaced.
func (c *Cache) LoadForScope(ctx context.Context, scope model.TargetScope) (*LoadSummary, error) {
	if !scope.Valid() {
		return nil, eris.Errorf("catalog: invalid scope %q", string(scope))
	}

	c.mu.Lock()
	c.selected = scope
	c.mu.Unlock()

	rows, fetchWarnings, err := c.fetcher.FetchItemsByScope(ctx, scope)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load scope %s", scope)
	}

	view, warnings := buildLoad(scope, rows, fetchWarnings)

	c.mu.Lock()
	defer c.mu.Unlock()
	summary := &LoadSummary{
		Scope:    scope,
		Items:    view.Len(),
		Masters:  view.MasterCount(),
		Warnings: warnings,
	}
	if c.selected != scope {
		// A newer selection superseded this load while it was in flight.
		summary.Stale = true
		zap.L().Info("discarding stale catalog load",
			zap.String("loaded_scope", string(scope)),
			zap.String("selected_scope", string(c.selected)),
		)
		return summary, nil
	}
	c.view = view

	zap.L().Info("catalog loaded",
		zap.String("scope", string(scope)),
		zap.Int("items", summary.Items),
		zap.Int("masters", summary.Masters),
		zap.Int("warnings", len(warnings)),
	)
	return summary, nil
}

func buildLoad(scope model.TargetScope, rows []model.ItemRow, fetchWarnings []model.RowWarning) (*View, []model.RowWarning) {
	view, dupWarnings := buildView(scope, rows)
	warnings := make([]model.RowWarning, 0, len(fetchWarnings)+len(dupWarnings))
	warnings = append(warnings, fetchWarnings...)
	warnings = append(warnings, dupWarnings...)
	if len(warnings) == 0 {
		warnings = nil
	}
	return view, warnings
}

// ItemByTag looks up the tracked item for a tag in the current index.
func (c *Cache) ItemByTag(tag string) (model.TrackedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.view.items[tag]
	return it, ok
}

// MarkInventoried mirrors a confirmed (or reverted) remote update into the
// local index. Returns false when the tag is no longer part of the current
// index, e.g. after a scope switch; the remote row was still updated.
func (c *Cache) MarkInventoried(tag string, inventoried bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.view.items[tag]
	if !ok {
		return false
	}
	it.Inventoried = inventoried
	c.view.items[tag] = it
	return true
}

// ResetLocal clears the inventoried flag on every item in the current
// index. Called only after a successful remote batch reset. The scope must
// match the current selection: a reset issued for a scope that was switched
// away mid-call must not clear the new scope's flags. Returns false when
// the mirror was skipped for that reason.
func (c *Cache) ResetLocal(scope model.TargetScope) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected != scope {
		return 0, false
	}
	n := 0
	for tag, it := range c.view.items {
		if it.Inventoried {
			it.Inventoried = false
			c.view.items[tag] = it
			n++
		}
	}
	return n, true
}
