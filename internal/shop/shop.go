// Package shop projects the master catalog into a storefront product view
// with availability derived from stocktake results.
package shop

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
)

// ErrProductNotFound is returned when no catalog entry backs the requested
// product ID.
var ErrProductNotFound = eris.New("shop: product not found")

// Availability of a product on the storefront.
type Availability string

const (
	// StatusAvailable: at least one inventoried item in stock.
	StatusAvailable Availability = "available"
	// StatusOutOfStock: items are registered but none has been inventoried.
	StatusOutOfStock Availability = "out_of_stock"
	// StatusChecking: no items registered yet; stock level unknown.
	StatusChecking Availability = "checking"
)

// Product is a storefront listing derived from a catalog entry.
type Product struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	ProductCode string       `json:"product_code,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Scope       string       `json:"scope"`
	Stock       int          `json:"stock"`
	Status      Availability `json:"status"`
}

// StockReader is the slice of the remote store the shop needs.
type StockReader interface {
	FetchStockLevels(ctx context.Context) ([]model.MasterStock, error)
}

// Shop lists products backed by live stock counts.
type Shop struct {
	store StockReader
}

// New creates a shop over the given store.
func New(store StockReader) *Shop {
	return &Shop{store: store}
}

// statusFor derives availability from the item counts. Stock counts only
// inventoried items: an uncounted item is not sellable.
func statusFor(st model.MasterStock) Availability {
	switch {
	case st.InventoriedCount > 0:
		return StatusAvailable
	case st.ItemCount > 0:
		return StatusOutOfStock
	default:
		return StatusChecking
	}
}

func toProduct(st model.MasterStock) Product {
	return Product{
		ID:          st.Master.ID,
		Name:        st.Master.Name,
		Description: st.Master.Notes,
		ProductCode: st.Master.ProductCode,
		ImageURL:    st.Master.ImageURL,
		Scope:       string(st.Master.Scope),
		Stock:       st.InventoriedCount,
		Status:      statusFor(st),
	}
}

// ListProducts returns all storefront products, optionally filtered by scope
// and a case-insensitive name query, sorted by name.
func (s *Shop) ListProducts(ctx context.Context, scope model.TargetScope, query string) ([]Product, error) {
	if scope != "" && !scope.Valid() {
		return nil, eris.Errorf("shop: invalid scope %q", string(scope))
	}

	levels, err := s.store.FetchStockLevels(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "shop: fetch stock levels")
	}

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Product, 0, len(levels))
	for _, st := range levels {
		if scope != "" && st.Master.Scope != scope {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(st.Master.Name), query) {
			continue
		}
		out = append(out, toProduct(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	zap.L().Debug("storefront listed",
		zap.String("scope", string(scope)),
		zap.Int("products", len(out)),
	)
	return out, nil
}

// GetProduct returns a single product by master ID.
func (s *Shop) GetProduct(ctx context.Context, id string) (*Product, error) {
	levels, err := s.store.FetchStockLevels(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "shop: fetch stock levels")
	}
	for _, st := range levels {
		if st.Master.ID == id {
			p := toProduct(st)
			return &p, nil
		}
	}
	return nil, eris.Wrapf(ErrProductNotFound, "id %s", id)
}
