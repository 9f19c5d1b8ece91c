package catalog

import (
	"fmt"

	"github.com/kandelab/stocktake/internal/model"
)

// View is an immutable snapshot of the master index for one scope: the set
// of expected tags with their tracked items, plus the joined catalog entries
// for display. Consumers must not mutate it; the cache hands out fresh
// copies.
type View struct {
	scope   model.TargetScope
	items   map[string]model.TrackedItem  // by tag ID
	masters map[string]model.CatalogEntry // by master ID
}

// buildView folds fetched rows into the two lookup maps. A row whose tag is
// already present violates the per-scope uniqueness invariant and is skipped
// with a warning.
func buildView(scope model.TargetScope, rows []model.ItemRow) (*View, []model.RowWarning) {
	v := &View{
		scope:   scope,
		items:   make(map[string]model.TrackedItem, len(rows)),
		masters: make(map[string]model.CatalogEntry),
	}
	var warnings []model.RowWarning
	for i, row := range rows {
		if _, dup := v.items[row.Item.TagID]; dup {
			warnings = append(warnings, model.RowWarning{
				Index:  i,
				Reason: fmt.Sprintf("duplicate tag %s in scope %s", row.Item.TagID, scope),
			})
			continue
		}
		v.items[row.Item.TagID] = row.Item
		if row.Master != nil {
			v.masters[row.Master.ID] = *row.Master
		}
	}
	return v, warnings
}

func emptyView(scope model.TargetScope) *View {
	return &View{
		scope:   scope,
		items:   map[string]model.TrackedItem{},
		masters: map[string]model.CatalogEntry{},
	}
}

func (v *View) clone() *View {
	c := &View{
		scope:   v.scope,
		items:   make(map[string]model.TrackedItem, len(v.items)),
		masters: make(map[string]model.CatalogEntry, len(v.masters)),
	}
	for k, it := range v.items {
		c.items[k] = it
	}
	for k, m := range v.masters {
		c.masters[k] = m
	}
	return c
}

// Scope returns the target scope the view was loaded for.
func (v *View) Scope() model.TargetScope { return v.scope }

// Tags returns the set of expected tag IDs.
func (v *View) Tags() model.TagSet {
	s := make(model.TagSet, len(v.items))
	for tag := range v.items {
		s[tag] = struct{}{}
	}
	return s
}

// Item looks up the tracked item for a tag.
func (v *View) Item(tag string) (model.TrackedItem, bool) {
	it, ok := v.items[tag]
	return it, ok
}

// MasterForTag resolves the catalog entry behind a tag, if any.
func (v *View) MasterForTag(tag string) (model.CatalogEntry, bool) {
	it, ok := v.items[tag]
	if !ok {
		return model.CatalogEntry{}, false
	}
	m, ok := v.masters[it.MasterID]
	return m, ok
}

// ItemIDs returns the IDs of every tracked item in the view.
func (v *View) ItemIDs() []string {
	ids := make([]string, 0, len(v.items))
	for _, it := range v.items {
		ids = append(ids, it.ID)
	}
	return ids
}

// Len returns the number of tracked items.
func (v *View) Len() int { return len(v.items) }

// MasterCount returns the number of distinct catalog entries.
func (v *View) MasterCount() int { return len(v.masters) }
