// Package tracker accumulates the set of tag IDs observed during a
// reconciliation session.
package tracker

import (
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
)

// Tracker folds raw tag reads into the session's observed set. It performs
// no I/O and is not safe for concurrent use: all calls must come from the
// engine's single-writer context (see reconcile.Engine).
type Tracker struct {
	observed model.TagSet
	subs     []func(model.TagSet)
	dropped  int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{observed: model.NewTagSet()}
}

// Subscribe registers a change listener. Listeners receive an independent
// snapshot of the full observed set and are invoked synchronously after
// every mutating Ingest or Clear.
func (t *Tracker) Subscribe(fn func(model.TagSet)) {
	t.subs = append(t.subs, fn)
}

// Ingest normalizes and adds a batch of raw reads. Duplicate tags within or
// across calls are no-ops; malformed reads are dropped silently (scanner
// noise is expected). Returns the number of newly observed tags and fires a
// change notification only when that number is positive.
func (t *Tracker) Ingest(raw []string) int {
	added := 0
	for _, r := range raw {
		tag, ok := model.NormalizeTag(r)
		if !ok {
			t.dropped++
			continue
		}
		if t.observed.Add(tag) {
			added++
		}
	}
	if added > 0 {
		zap.L().Debug("observed set grew",
			zap.Int("added", added),
			zap.Int("total", len(t.observed)),
		)
		t.notify()
	}
	return added
}

// Clear empties the observed set and notifies listeners.
func (t *Tracker) Clear() {
	t.observed = model.NewTagSet()
	t.notify()
}

// Snapshot returns an independent copy of the current observed set.
func (t *Tracker) Snapshot() model.TagSet {
	return t.observed.Clone()
}

// Len returns the number of distinct observed tags.
func (t *Tracker) Len() int { return len(t.observed) }

// Dropped returns the number of malformed reads rejected so far.
func (t *Tracker) Dropped() int { return t.dropped }

func (t *Tracker) notify() {
	for _, fn := range t.subs {
		fn(t.observed.Clone())
	}
}
