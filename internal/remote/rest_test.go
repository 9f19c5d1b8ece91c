package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/resilience"
)

func restServer(t *testing.T, handler http.HandlerFunc) *RESTStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewREST(srv.URL, "test-key", WithHTTPClient(srv.Client()))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func restItemRow(id, tag string, inventoried bool) map[string]any {
	return map[string]any{
		"id":             id,
		"tag_id":         tag,
		"master_id":      "m1",
		"is_inventoried": inventoried,
		"inventory_masters": map[string]any{
			"id":     "m1",
			"name":   "Gauze",
			"target": "clinic",
		},
	}
}

func TestRESTStore_FetchItemsByScope(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "*,inventory_masters!inner(*)", r.URL.Query().Get("select"))
		assert.Equal(t, "eq.clinic", r.URL.Query().Get("inventory_masters.target"))
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		writeJSON(t, w, []any{
			restItemRow("i1", "AAAA1111", false),
			map[string]any{"id": "i2"}, // missing tag_id: row warning
		})
	})

	rows, warnings, err := store.FetchItemsByScope(context.Background(), model.ScopeClinic)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AAAA1111", rows[0].Item.TagID)
	assert.Equal(t, "Gauze", rows[0].Master.Name)
	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].Index)
}

func TestRESTStore_FetchItemsByScope_EmptyIsValid(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{})
	})

	rows, warnings, err := store.FetchItemsByScope(context.Background(), model.ScopeClinic)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, warnings)
}

func TestRESTStore_FetchItemsByScope_NonArrayIsHardFailure(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"message": "unexpected"})
	})

	_, _, err := store.FetchItemsByScope(context.Background(), model.ScopeClinic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a row list")
}

func TestRESTStore_FetchItemsByScope_HTTPError(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	})

	_, _, err := store.FetchItemsByScope(context.Background(), model.ScopeClinic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestRESTStore_UpdateItemInventoried(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.i1", r.URL.Query().Get("id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["is_inventoried"])

		writeJSON(t, w, []any{map[string]any{"id": "i1"}})
	})

	require.NoError(t, store.UpdateItemInventoried(context.Background(), "i1", true))
}

func TestRESTStore_UpdateItemInventoried_NotFound(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{})
	})

	err := store.UpdateItemInventoried(context.Background(), "ghost", true)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestRESTStore_BatchUpdateInventoried(t *testing.T) {
	var gotFilter string
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("id")
		writeJSON(t, w, []any{})
	})

	require.NoError(t, store.BatchUpdateInventoried(context.Background(), []string{"i1", "i2"}, false))
	assert.Equal(t, "in.(i1,i2)", gotFilter)
}

func TestRESTStore_CreateMaster(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/inventory_masters", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Gauze", body["name"])
		assert.Equal(t, "clinic", body["target"])
		_, hasNotes := body["notes"]
		assert.False(t, hasNotes, "empty optional fields are omitted")

		writeJSON(t, w, []any{map[string]any{"id": "m1", "name": "Gauze", "target": "clinic"}})
	})

	m, err := store.CreateMaster(context.Background(), model.MasterParams{Name: "Gauze", Scope: model.ScopeClinic})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestRESTStore_FindItemByTag(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.AAAA1111", r.URL.Query().Get("tag_id"))
		writeJSON(t, w, []any{restItemRow("i1", "AAAA1111", true)})
	})

	row, err := store.FindItemByTag(context.Background(), "AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, "i1", row.Item.ID)
	assert.True(t, row.Item.Inventoried)
}

func TestRESTStore_FetchStockLevels(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "*,items(id,is_inventoried)", r.URL.Query().Get("select"))
		writeJSON(t, w, []any{
			map[string]any{
				"id": "m1", "name": "Gauze", "target": "clinic",
				"items": []any{
					map[string]any{"id": "i1", "is_inventoried": true},
					map[string]any{"id": "i2", "is_inventoried": false},
				},
			},
			map[string]any{
				"id": "m2", "name": "Splint", "target": "clinic",
				"items": []any{},
			},
		})
	})

	levels, err := store.FetchStockLevels(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, 2, levels[0].ItemCount)
	assert.Equal(t, 1, levels[0].InventoriedCount)
	assert.Zero(t, levels[1].ItemCount)
}

func TestRESTStore_BulkCreateItems(t *testing.T) {
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, "m1", body[0]["master_id"])
		writeJSON(t, w, body)
	})

	n, err := store.BulkCreateItems(context.Background(), "m1", []string{"AAAA1111", "BBBB2222"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRESTStore_RetriesTransientStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, []any{})
	}))
	t.Cleanup(srv.Close)

	store := NewREST(srv.URL, "test-key",
		WithHTTPClient(srv.Client()),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}),
	)

	_, err := store.ListMasters(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRESTStore_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	store := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "permission denied", http.StatusForbidden)
	})

	_, err := store.ListMasters(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
