package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
)

// fakeWriter records update calls and can block or fail them on demand.
type fakeWriter struct {
	mu           sync.Mutex
	updates      []string
	batches      [][]string
	updateErr    error
	batchErr     error
	gate         chan struct{}
	entered      chan struct{}
	batchGate    chan struct{}
	batchEntered chan struct{}
	updateCalls  int
}

func (f *fakeWriter) UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error {
	f.mu.Lock()
	f.updateCalls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, itemID)
	return nil
}

func (f *fakeWriter) BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error {
	f.mu.Lock()
	gate, entered := f.batchGate, f.batchEntered
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, itemIDs)
	return nil
}

func (f *fakeWriter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func TestCoordinator_Confirm(t *testing.T) {
	cache := loadedCache(t, row("AAAA1111", "i1", false))
	w := &fakeWriter{}
	c := NewCoordinator(w, cache)

	require.NoError(t, c.Confirm(context.Background(), "AAAA1111"))
	assert.Equal(t, []string{"i1"}, w.updates)

	it, ok := cache.ItemByTag("AAAA1111")
	require.True(t, ok)
	assert.True(t, it.Inventoried)

	st, ok := c.State("AAAA1111")
	require.True(t, ok)
	assert.Equal(t, model.StateConfirmed, st)

	// Confirmed items are terminal: no second network call.
	require.NoError(t, c.Confirm(context.Background(), "AAAA1111"))
	assert.Equal(t, 1, w.calls())
}

func TestCoordinator_ConfirmUnknownTag(t *testing.T) {
	cache := loadedCache(t)
	w := &fakeWriter{}
	c := NewCoordinator(w, cache)

	err := c.Confirm(context.Background(), "DEADBEEF")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownTag))
	assert.Zero(t, w.calls())
	assert.NotEmpty(t, c.LastConfirmError())
}

func TestCoordinator_AtMostOneInFlight(t *testing.T) {
	cache := loadedCache(t, row("AAAA1111", "i1", false))
	w := &fakeWriter{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	c := NewCoordinator(w, cache)

	done := make(chan error, 1)
	go func() { done <- c.Confirm(context.Background(), "AAAA1111") }()
	<-w.entered
	assert.True(t, c.InFlight("AAAA1111"))

	st, ok := c.State("AAAA1111")
	require.True(t, ok)
	assert.Equal(t, model.StateConfirmInFlight, st)

	// A second trigger while the first is outstanding is a no-op.
	require.NoError(t, c.Confirm(context.Background(), "AAAA1111"))

	close(w.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, w.calls())
	assert.False(t, c.InFlight("AAAA1111"))
}

func TestCoordinator_ConfirmFailureReverts(t *testing.T) {
	cache := loadedCache(t, row("AAAA1111", "i1", false))
	w := &fakeWriter{updateErr: eris.New("503 service unavailable")}
	c := NewCoordinator(w, cache)

	err := c.Confirm(context.Background(), "AAAA1111")
	require.Error(t, err)

	// Item stays pending and can be retried.
	it, ok := cache.ItemByTag("AAAA1111")
	require.True(t, ok)
	assert.False(t, it.Inventoried)
	st, _ := c.State("AAAA1111")
	assert.Equal(t, model.StatePending, st)
	assert.Contains(t, c.LastConfirmError(), "AAAA1111")

	// Next success clears the recorded error.
	w.mu.Lock()
	w.updateErr = nil
	w.mu.Unlock()
	require.NoError(t, c.Confirm(context.Background(), "AAAA1111"))
	assert.Empty(t, c.LastConfirmError())
}

func TestCoordinator_ResetScope(t *testing.T) {
	cache := loadedCache(t,
		row("AAAA1111", "i1", true),
		row("BBBB2222", "i2", true),
		row("CCCC3333", "i3", false),
	)
	w := &fakeWriter{}
	c := NewCoordinator(w, cache)

	sum, err := c.ResetScope(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ScopeClinic, sum.Scope)
	assert.Equal(t, 3, sum.Items)
	assert.Equal(t, 2, sum.Cleared)

	// Batch is bounded by the known item IDs.
	require.Len(t, w.batches, 1)
	assert.ElementsMatch(t, []string{"i1", "i2", "i3"}, w.batches[0])

	for _, tag := range []string{"AAAA1111", "BBBB2222", "CCCC3333"} {
		it, ok := cache.ItemByTag(tag)
		require.True(t, ok)
		assert.False(t, it.Inventoried)
	}
}

func TestCoordinator_ResetFailureKeepsLocalState(t *testing.T) {
	cache := loadedCache(t, row("AAAA1111", "i1", true))
	w := &fakeWriter{batchErr: eris.New("timeout")}
	c := NewCoordinator(w, cache)

	_, err := c.ResetScope(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, c.LastResetError())

	// Local mirror untouched on failure.
	it, ok := cache.ItemByTag("AAAA1111")
	require.True(t, ok)
	assert.True(t, it.Inventoried)
}

func TestCoordinator_ResetDuringScopeSwitchSkipsLocalMirror(t *testing.T) {
	f := &stubFetcher{rows: []model.ItemRow{row("AAAA1111", "i1", true)}}
	cache := catalog.NewCache(f)
	_, err := cache.LoadForScope(context.Background(), model.ScopeClinic)
	require.NoError(t, err)

	w := &fakeWriter{
		batchGate:    make(chan struct{}),
		batchEntered: make(chan struct{}, 1),
	}
	c := NewCoordinator(w, cache)

	done := make(chan *ResetSummary, 1)
	go func() {
		sum, err := c.ResetScope(context.Background())
		require.NoError(t, err)
		done <- sum
	}()
	<-w.batchEntered

	// Switch scopes while the batch call is outstanding. The remote reset
	// targets the clinic item IDs, so the card_shop index must keep its
	// inventoried flags.
	f.rows = []model.ItemRow{row("BBBB2222", "i2", true)}
	_, err = cache.LoadForScope(context.Background(), model.ScopeCardShop)
	require.NoError(t, err)
	close(w.batchGate)

	sum := <-done
	assert.Equal(t, model.ScopeClinic, sum.Scope)
	assert.Zero(t, sum.Cleared)

	it, ok := cache.ItemByTag("BBBB2222")
	require.True(t, ok)
	assert.True(t, it.Inventoried)
}

func TestCoordinator_ResetEmptyScope(t *testing.T) {
	cache := loadedCache(t)
	w := &fakeWriter{batchErr: eris.New("should not be called")}
	c := NewCoordinator(w, cache)

	sum, err := c.ResetScope(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Items)
	assert.Empty(t, w.batches)
}

func TestCoordinator_ConcurrentConfirmsSingleUpdate(t *testing.T) {
	cache := loadedCache(t, row("AAAA1111", "i1", false))
	w := &fakeWriter{gate: make(chan struct{})}
	c := NewCoordinator(w, cache)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Confirm(context.Background(), "AAAA1111")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(w.gate)
	wg.Wait()

	assert.Equal(t, 1, w.calls())
}
