package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/tracker"
)

// Snapshot is the read-only state pushed to observers: the observed set,
// the current classification and the last error per operation kind.
type Snapshot struct {
	Scope           model.TargetScope `json:"scope"`
	Observed        []string          `json:"observed"`
	DroppedReads    int               `json:"dropped_reads"`
	Result          Result            `json:"result"`
	LastLoadError   string            `json:"last_load_error,omitempty"`
	LastCommitError string            `json:"last_commit_error,omitempty"`
	LastResetError  string            `json:"last_reset_error,omitempty"`
}

type event any

type evIngest struct{ tags []string }
type evClear struct{}
type evConfirm struct{ tag string }
type evConfirmDone struct {
	tag string
	err error
}
type evRecompute struct{}

// Engine owns the reconciliation session. All core state transitions run on
// a single event loop (Run), which is the serialization contract of the
// design: tracker mutations, classification and confirm dispatch never race.
// The only suspension points are the remote store calls, which run in
// spawned goroutines and report back as events.
type Engine struct {
	tracker *tracker.Tracker
	cache   *catalog.Cache
	coord   *Coordinator

	events chan event

	// failed holds tags whose last confirm attempt was rejected by the
	// store. They are not redispatched automatically; the next observed-set
	// change, manual confirm or scope load re-arms them. Loop-confined.
	failed map[string]struct{}

	mu          sync.RWMutex
	snap        Snapshot
	lastLoadErr string
	subs        []func(Snapshot)
}

// New wires an engine over the given cache and coordinator.
func New(cache *catalog.Cache, coord *Coordinator) *Engine {
	e := &Engine{
		tracker: tracker.New(),
		cache:   cache,
		coord:   coord,
		events:  make(chan event, 256),
		failed:  make(map[string]struct{}),
	}
	e.snap = Snapshot{Observed: []string{}, Result: Classify(model.NewTagSet(), cache.View())}
	return e
}

// Subscribe registers an observer for state snapshots. Safe to call while
// the loop runs. Observers run on the engine loop; keep them fast.
func (e *Engine) Subscribe(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Run processes events until ctx is cancelled. It must be running for
// Ingest, Clear and Confirm to make progress.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case evIngest:
		if e.tracker.Ingest(ev.tags) > 0 {
			// An observed-set change re-arms tags whose last confirm failed.
			clear(e.failed)
			e.reconcile(ctx)
		}
	case evClear:
		e.tracker.Clear()
		clear(e.failed)
		e.publish(Classify(e.tracker.Snapshot(), e.cache.View()))
	case evConfirm:
		delete(e.failed, ev.tag)
		e.dispatchConfirm(ctx, ev.tag)
	case evConfirmDone:
		if ev.err != nil {
			// The item reverted to pending. No automatic retry: publish the
			// failure and wait for the next observed-set change or manual
			// action to re-trigger.
			e.failed[ev.tag] = struct{}{}
			e.publish(Classify(e.tracker.Snapshot(), e.cache.View()))
			return
		}
		delete(e.failed, ev.tag)
		e.reconcile(ctx)
	case evRecompute:
		clear(e.failed)
		e.reconcile(ctx)
	}
}

// reconcile classifies the current state and auto-confirms every matched
// pending tag: a tag transitions the instant it is both expected and
// observed, no manual action required. Tags whose last confirm failed are
// skipped until re-armed.
func (e *Engine) reconcile(ctx context.Context) {
	res := Classify(e.tracker.Snapshot(), e.cache.View())
	for _, tag := range res.MatchedPending {
		if _, held := e.failed[tag]; held {
			continue
		}
		if !e.coord.InFlight(tag) {
			e.dispatchConfirm(ctx, tag)
		}
	}
	e.publish(res)
}

func (e *Engine) dispatchConfirm(ctx context.Context, tag string) {
	go func() {
		err := e.coord.Confirm(ctx, tag)
		select {
		case e.events <- evConfirmDone{tag: tag, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) publish(res Result) {
	snap := Snapshot{
		Scope:           e.cache.Selected(),
		Observed:        e.tracker.Snapshot().Sorted(),
		DroppedReads:    e.tracker.Dropped(),
		Result:          res,
		LastCommitError: e.coord.LastConfirmError(),
		LastResetError:  e.coord.LastResetError(),
	}
	e.mu.Lock()
	snap.LastLoadError = e.lastLoadErr
	e.snap = snap
	subs := append([]func(Snapshot){}, e.subs...)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// State returns the latest published snapshot.
func (e *Engine) State() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Ingest feeds a batch of raw tag reads into the session.
func (e *Engine) Ingest(tags []string) {
	e.events <- evIngest{tags: tags}
}

// Clear empties the observed set ("clear scan data").
func (e *Engine) Clear() {
	e.events <- evClear{}
}

// Confirm requests a manual inventoried transition for one tag. It shares
// the automatic path's entry point and dedup, and is fire-and-forget: the
// outcome lands in the next snapshot.
func (e *Engine) Confirm(tag string) {
	e.events <- evConfirm{tag: tag}
}

// SelectScope loads the master catalog for scope. Blocking; safe to call
// while the loop runs. A load superseded by a newer selection is discarded
// by the cache and reported as stale.
func (e *Engine) SelectScope(ctx context.Context, scope model.TargetScope) (*catalog.LoadSummary, error) {
	sum, err := e.cache.LoadForScope(ctx, scope)

	e.mu.Lock()
	if err != nil {
		e.lastLoadErr = err.Error()
	} else {
		e.lastLoadErr = ""
	}
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !sum.Stale {
		select {
		case e.events <- evRecompute{}:
		case <-ctx.Done():
		}
	}
	return sum, nil
}

// ResetScope clears the inventoried state of every loaded item, remote
// first, then the local mirror.
func (e *Engine) ResetScope(ctx context.Context) (*ResetSummary, error) {
	sum, err := e.coord.ResetScope(ctx)
	if err != nil {
		// Publish so observers see the recorded reset error.
		select {
		case e.events <- evRecompute{}:
		case <-ctx.Done():
		}
		return nil, err
	}
	select {
	case e.events <- evRecompute{}:
	case <-ctx.Done():
	}
	zap.L().Debug("reset applied", zap.Int("cleared", sum.Cleared))
	return sum, nil
}
