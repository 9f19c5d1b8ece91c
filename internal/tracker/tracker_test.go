package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandelab/stocktake/internal/model"
)

func TestTracker_IngestIdempotent(t *testing.T) {
	tr := New()

	b1 := []string{"abcdef12", "11112222"}
	b2 := []string{"11112222", "ABCDEF12", "abcdef12", "33334444"}

	assert.Equal(t, 2, tr.Ingest(b1))
	assert.Equal(t, 1, tr.Ingest(b2))

	want := model.NewTagSet("ABCDEF12", "11112222", "33334444")
	assert.Equal(t, want, tr.Snapshot())

	// Re-ingesting any permutation with repeats changes nothing.
	assert.Equal(t, 0, tr.Ingest([]string{"33334444", "abcdef12", "11112222", "11112222"}))
	assert.Equal(t, want, tr.Snapshot())
}

func TestTracker_DropsMalformedSilently(t *testing.T) {
	tr := New()
	added := tr.Ingest([]string{"", "short", "ZZZZZZZZ", "ABCDEF12"})
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, tr.Dropped())
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_NotifyOnlyWhenGrown(t *testing.T) {
	tr := New()
	var calls int
	tr.Subscribe(func(model.TagSet) { calls++ })

	tr.Ingest([]string{"ABCDEF12"})
	assert.Equal(t, 1, calls)

	// Duplicate batch: no growth, no notification.
	tr.Ingest([]string{"ABCDEF12"})
	assert.Equal(t, 1, calls)

	// Malformed-only batch: no notification.
	tr.Ingest([]string{"bad"})
	assert.Equal(t, 1, calls)
}

func TestTracker_Clear(t *testing.T) {
	tr := New()
	tr.Ingest([]string{"ABCDEF12", "11112222"})

	var got model.TagSet
	tr.Subscribe(func(s model.TagSet) { got = s })

	tr.Clear()
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, tr.Len())
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := New()
	tr.Ingest([]string{"ABCDEF12"})

	snap := tr.Snapshot()
	snap.Add("DEADBEEF")

	assert.Equal(t, 1, tr.Len())
}
