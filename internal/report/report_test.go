package report

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
)

type stubFetcher struct {
	rows []model.ItemRow
}

func (s *stubFetcher) FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error) {
	return s.rows, nil, nil
}

func loadedView(t *testing.T, rows ...model.ItemRow) *catalog.View {
	t.Helper()
	c := catalog.NewCache(&stubFetcher{rows: rows})
	_, err := c.LoadForScope(context.Background(), model.ScopeClinic)
	require.NoError(t, err)
	return c.View()
}

func itemRow(tag, itemID string, inventoried bool) model.ItemRow {
	return model.ItemRow{
		Item: model.TrackedItem{ID: itemID, TagID: tag, MasterID: "m1", Inventoried: inventoried},
		Master: &model.CatalogEntry{
			ID:    "m1",
			Name:  "Booster Box",
			Scope: model.ScopeClinic,
		},
	}
}

func TestBuildAndSave(t *testing.T) {
	view := loadedView(t,
		itemRow("AAAA1111", "i1", true),
		itemRow("BBBB2222", "i2", false),
		itemRow("CCCC3333", "i3", false),
	)
	res := reconcile.Result{
		Scope:            model.ScopeClinic,
		MatchedConfirmed: []string{"AAAA1111"},
		MatchedPending:   []string{"BBBB2222"},
		Missing:          []string{"CCCC3333"},
		Unexpected:       []string{"DEADBEEF"},
	}

	r := Build(res, view)
	assert.Equal(t, 4, r.Total())
	require.Len(t, r.Confirmed, 1)
	assert.Equal(t, "i1", r.Confirmed[0].ItemID)
	assert.Equal(t, "Booster Box", r.Confirmed[0].MasterName)
	// Unexpected tags have no catalog metadata.
	require.Len(t, r.Unexpected, 1)
	assert.Empty(t, r.Unexpected[0].ItemID)

	path := filepath.Join(t.TempDir(), "stocktake.xlsx")
	require.NoError(t, r.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 5)

	missing, ok := f.Sheet["Missing"]
	require.True(t, ok)
	require.Len(t, missing.Rows, 2) // header + one line
	assert.Equal(t, "CCCC3333", missing.Rows[1].Cells[0].String())
	assert.Equal(t, "missing", missing.Rows[1].Cells[4].String())
}

func TestReadMasterList(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Masters")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"Name", "Notes", "Extra", "Product Code"},
		{"Booster Box", "sealed", "", "BB-001"},
		{"", "", "", ""},                // blank row
		{"", "orphan notes", "", "X1"}, // missing name
		{"Playmat", "", "blue", ""},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "masters.xlsx")
	require.NoError(t, f.Save(path))

	params, warnings, err := ReadMasterList(path, model.ScopeCardShop)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "Booster Box", params[0].Name)
	assert.Equal(t, "BB-001", params[0].ProductCode)
	assert.Equal(t, model.ScopeCardShop, params[0].Scope)
	assert.Equal(t, "Playmat", params[1].Name)

	require.Len(t, warnings, 1)
	assert.Equal(t, 3, warnings[0].Index)
	assert.Contains(t, warnings[0].Reason, "name is required")
}

func TestReadMasterList_InvalidScope(t *testing.T) {
	_, _, err := ReadMasterList("whatever.xlsx", "warehouse")
	require.Error(t, err)
}

func TestReadMasterList_MissingFile(t *testing.T) {
	_, _, err := ReadMasterList(filepath.Join(t.TempDir(), "nope.xlsx"), model.ScopeClinic)
	require.Error(t, err)
}
