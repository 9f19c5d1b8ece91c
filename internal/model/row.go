package model

import (
	"fmt"
	"time"
)

// ItemRow is one fetched item together with its joined catalog entry.
// Master may be nil when the join produced no catalog row.
type ItemRow struct {
	Item   TrackedItem
	Master *CatalogEntry
}

// RowWarning records a single row that was skipped during a fetch. The load
// as a whole still succeeds; warnings are surfaced through the load summary.
type RowWarning struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (w RowWarning) String() string {
	return fmt.Sprintf("row %d: %s", w.Index, w.Reason)
}

// DecodeItemRow decodes a loosely-typed item row as returned by the REST
// adapter. Each row is validated independently: a missing required field
// fails only that row, not the whole response.
func DecodeItemRow(raw map[string]any) (ItemRow, error) {
	var row ItemRow

	id, ok := stringField(raw, "id")
	if !ok {
		return row, fmt.Errorf("missing required field %q", "id")
	}
	tag, ok := stringField(raw, "tag_id")
	if !ok {
		return row, fmt.Errorf("missing required field %q", "tag_id")
	}
	masterID, ok := stringField(raw, "master_id")
	if !ok {
		return row, fmt.Errorf("missing required field %q", "master_id")
	}

	inventoried, _ := raw["is_inventoried"].(bool)

	row.Item = TrackedItem{
		ID:          id,
		TagID:       tag,
		MasterID:    masterID,
		Inventoried: inventoried,
		CreatedAt:   timeField(raw, "created_at"),
		UpdatedAt:   timeField(raw, "updated_at"),
	}

	if nested, ok := raw["inventory_masters"].(map[string]any); ok {
		master, err := DecodeMasterRow(nested)
		if err != nil {
			return row, err
		}
		row.Master = master
	}

	return row, nil
}

// DecodeMasterRow decodes a loosely-typed catalog entry row.
func DecodeMasterRow(raw map[string]any) (*CatalogEntry, error) {
	id, ok := stringField(raw, "id")
	if !ok {
		return nil, fmt.Errorf("joined master missing required field %q", "id")
	}
	name, ok := stringField(raw, "name")
	if !ok {
		return nil, fmt.Errorf("joined master missing required field %q", "name")
	}
	target, ok := stringField(raw, "target")
	if !ok {
		return nil, fmt.Errorf("joined master missing required field %q", "target")
	}
	scope, err := ParseScope(target)
	if err != nil {
		return nil, fmt.Errorf("joined master has unknown target %q", target)
	}

	entry := &CatalogEntry{
		ID:        id,
		Name:      name,
		Scope:     scope,
		CreatedAt: timeField(raw, "created_at"),
		UpdatedAt: timeField(raw, "updated_at"),
	}
	entry.Notes, _ = stringField(raw, "notes")
	entry.Extra, _ = stringField(raw, "extra")
	entry.ProductCode, _ = stringField(raw, "product_code")
	entry.ImageURL, _ = stringField(raw, "image_url")
	return entry, nil
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func timeField(raw map[string]any, key string) time.Time {
	s, ok := raw[key].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
