package reconcile

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
)

// ErrUnknownTag is returned when a confirm is requested for a tag with no
// tracked item in the current index. Not retried.
var ErrUnknownTag = eris.New("reconcile: no item for tag")

// ItemWriter is the slice of the remote store the coordinator needs.
type ItemWriter interface {
	UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error
	BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error
}

// ResetSummary reports the outcome of a scope-wide inventoried reset.
type ResetSummary struct {
	Scope   model.TargetScope `json:"scope"`
	Items   int               `json:"items"`
	Cleared int               `json:"cleared"`
}

// Coordinator serializes and deduplicates outbound inventoried transitions.
// Each tag has at most one confirm in flight at a time; the marker is
// checked and set before the network call is issued, so concurrent triggers
// (automatic match and manual action) collapse into a single update.
type Coordinator struct {
	store ItemWriter
	cache *catalog.Cache

	mu             sync.Mutex
	inflight       map[string]struct{}
	lastConfirmErr string
	lastResetErr   string
}

// NewCoordinator creates a coordinator over the given store and cache.
func NewCoordinator(store ItemWriter, cache *catalog.Cache) *Coordinator {
	return &Coordinator{
		store:    store,
		cache:    cache,
		inflight: make(map[string]struct{}),
	}
}

// Confirm marks the item behind tag as inventoried, at most once. Both the
// automatic match path and the manual UI action enter here. Already
// confirmed or already in-flight tags are no-ops. On remote failure the
// item reverts to pending and the error is recorded; there is no automatic
// retry — the next observed-set change or manual action re-triggers.
func (c *Coordinator) Confirm(ctx context.Context, tag string) error {
	item, ok := c.cache.ItemByTag(tag)
	if !ok {
		err := eris.Wrapf(ErrUnknownTag, "tag %s", tag)
		c.mu.Lock()
		c.lastConfirmErr = err.Error()
		c.mu.Unlock()
		return err
	}
	if item.Inventoried {
		return nil
	}

	c.mu.Lock()
	if _, busy := c.inflight[tag]; busy {
		c.mu.Unlock()
		return nil
	}
	c.inflight[tag] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, tag)
		c.mu.Unlock()
	}()

	if err := c.store.UpdateItemInventoried(ctx, item.ID, true); err != nil {
		wrapped := eris.Wrapf(err, "reconcile: confirm tag %s", tag)
		c.mu.Lock()
		c.lastConfirmErr = wrapped.Error()
		c.mu.Unlock()
		zap.L().Warn("confirm failed, item stays pending",
			zap.String("tag", tag),
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		return wrapped
	}

	c.cache.MarkInventoried(tag, true)
	c.mu.Lock()
	c.lastConfirmErr = ""
	c.mu.Unlock()
	zap.L().Info("item inventoried",
		zap.String("tag", tag),
		zap.String("item_id", item.ID),
	)
	return nil
}

// ResetScope clears the inventoried flag on every item currently loaded,
// in one remote batch bounded by the known item IDs. The local index is
// mirrored only after the batch call succeeds.
func (c *Coordinator) ResetScope(ctx context.Context) (*ResetSummary, error) {
	view := c.cache.View()
	ids := view.ItemIDs()

	if len(ids) > 0 {
		if err := c.store.BatchUpdateInventoried(ctx, ids, false); err != nil {
			wrapped := eris.Wrapf(err, "reconcile: reset scope %s", view.Scope())
			c.mu.Lock()
			c.lastResetErr = wrapped.Error()
			c.mu.Unlock()
			return nil, wrapped
		}
	}

	cleared, applied := c.cache.ResetLocal(view.Scope())
	if !applied {
		zap.L().Warn("scope switched during reset, local mirror skipped",
			zap.String("reset_scope", string(view.Scope())),
			zap.String("selected_scope", string(c.cache.Selected())),
		)
	}
	c.mu.Lock()
	c.lastResetErr = ""
	c.mu.Unlock()
	zap.L().Info("scope reset",
		zap.String("scope", string(view.Scope())),
		zap.Int("items", len(ids)),
		zap.Int("cleared", cleared),
	)
	return &ResetSummary{Scope: view.Scope(), Items: len(ids), Cleared: cleared}, nil
}

// InFlight reports whether a confirm for tag is currently outstanding.
func (c *Coordinator) InFlight(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[tag]
	return ok
}

// State derives the per-item confirm state for a tag.
func (c *Coordinator) State(tag string) (model.ItemState, bool) {
	item, ok := c.cache.ItemByTag(tag)
	if !ok {
		return 0, false
	}
	if item.Inventoried {
		return model.StateConfirmed, true
	}
	if c.InFlight(tag) {
		return model.StateConfirmInFlight, true
	}
	return model.StatePending, true
}

// LastConfirmError returns the last confirm failure, empty after the next
// successful confirm.
func (c *Coordinator) LastConfirmError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConfirmErr
}

// LastResetError returns the last reset failure, empty after the next
// successful reset.
func (c *Coordinator) LastResetError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResetErr
}
