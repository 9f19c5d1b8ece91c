package model

// MasterStock is a catalog entry with its item counts, as consumed by the
// storefront. Stock is derived from inventoried items only: an item that has
// not been counted in a stocktake is not sellable yet.
type MasterStock struct {
	Master           CatalogEntry `json:"master"`
	ItemCount        int          `json:"item_count"`
	InventoriedCount int          `json:"inventoried_count"`
}
