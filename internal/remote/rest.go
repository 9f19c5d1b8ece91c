package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/resilience"
)

// RESTStore implements Store against a PostgREST-style endpoint (the hosted
// backend the mobile client talks to). Responses are decoded row by row so a
// single malformed row degrades to a warning instead of failing the load.
type RESTStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// RESTOption configures the REST adapter.
type RESTOption func(*RESTStore)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(s *RESTStore) { s.http = hc }
}

// WithRateLimit caps outbound requests per second. Zero disables pacing.
func WithRateLimit(rps float64) RESTOption {
	return func(s *RESTStore) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) RESTOption {
	return func(s *RESTStore) { s.retry = cfg }
}

// NewREST creates a REST adapter for the given base URL and API key.
func NewREST(baseURL, apiKey string, opts ...RESTOption) *RESTStore {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("rest")
	s := &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RESTStore) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, eris.Wrap(err, "rest: marshal body")
		}
	}

	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	// Each attempt gets a fresh body reader; the payload itself is immutable.
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.roundTrip(ctx, method, u, path, payload)
	})
}

func (s *RESTStore) roundTrip(ctx context.Context, method, u, path string, payload []byte) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rest: rate limit wait")
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, eris.Wrap(err, "rest: build request")
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "rest: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "rest: read response for %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("rest: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// FetchItemsByScope loads items joined with masters for one scope.
func (s *RESTStore) FetchItemsByScope(ctx context.Context, scope model.TargetScope) ([]model.ItemRow, []model.RowWarning, error) {
	q := url.Values{}
	q.Set("select", "*,inventory_masters!inner(*)")
	q.Set("inventory_masters.target", "eq."+string(scope))

	data, err := s.do(ctx, http.MethodGet, "/items", q, nil)
	if err != nil {
		return nil, nil, err
	}

	// A response that is not a JSON array at all is a hard failure, not a
	// row warning.
	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, nil, eris.Wrap(err, "rest: response is not a row list")
	}

	var (
		rows     []model.ItemRow
		warnings []model.RowWarning
	)
	for i, raw := range rawRows {
		row, err := model.DecodeItemRow(raw)
		if err != nil {
			zap.L().Warn("skipping malformed item row",
				zap.Int("index", i),
				zap.String("reason", err.Error()),
			)
			warnings = append(warnings, model.RowWarning{Index: i, Reason: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

// UpdateItemInventoried flips the inventoried flag of a single item.
func (s *RESTStore) UpdateItemInventoried(ctx context.Context, itemID string, inventoried bool) error {
	q := url.Values{}
	q.Set("id", "eq."+itemID)
	data, err := s.do(ctx, http.MethodPatch, "/items", q, map[string]any{"is_inventoried": inventoried})
	if err != nil {
		return err
	}
	var updated []map[string]any
	if err := json.Unmarshal(data, &updated); err != nil {
		return eris.Wrap(err, "rest: decode update response")
	}
	if len(updated) == 0 {
		return eris.Wrapf(ErrNotFound, "rest: item %s", itemID)
	}
	return nil
}

// BatchUpdateInventoried flips the inventoried flag for the given item IDs
// in one PATCH, bounded by the known ID list.
func (s *RESTStore) BatchUpdateInventoried(ctx context.Context, itemIDs []string, inventoried bool) error {
	if len(itemIDs) == 0 {
		return nil
	}
	q := url.Values{}
	q.Set("id", "in.("+strings.Join(itemIDs, ",")+")")
	_, err := s.do(ctx, http.MethodPatch, "/items", q, map[string]any{"is_inventoried": inventoried})
	return err
}

// ListMasters returns catalog entries, optionally filtered by scope.
func (s *RESTStore) ListMasters(ctx context.Context, scope model.TargetScope) ([]model.CatalogEntry, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	if scope != "" {
		q.Set("target", "eq."+string(scope))
	}
	data, err := s.do(ctx, http.MethodGet, "/inventory_masters", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeMasterList(data)
}

func decodeMasterList(data []byte) ([]model.CatalogEntry, error) {
	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, eris.Wrap(err, "rest: response is not a master list")
	}
	out := make([]model.CatalogEntry, 0, len(rawRows))
	for i, raw := range rawRows {
		m, err := model.DecodeMasterRow(raw)
		if err != nil {
			zap.L().Warn("skipping malformed master row",
				zap.Int("index", i),
				zap.String("reason", err.Error()),
			)
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// GetMaster fetches one catalog entry by ID.
func (s *RESTStore) GetMaster(ctx context.Context, id string) (*model.CatalogEntry, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("limit", "1")
	data, err := s.do(ctx, http.MethodGet, "/inventory_masters", q, nil)
	if err != nil {
		return nil, err
	}
	masters, err := decodeMasterList(data)
	if err != nil {
		return nil, err
	}
	if len(masters) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "rest: master %s", id)
	}
	return &masters[0], nil
}

func masterBody(p model.MasterParams) map[string]any {
	body := map[string]any{
		"name":   p.Name,
		"target": string(p.Scope),
	}
	if p.Notes != "" {
		body["notes"] = p.Notes
	}
	if p.Extra != "" {
		body["extra"] = p.Extra
	}
	if p.ProductCode != "" {
		body["product_code"] = p.ProductCode
	}
	if p.ImageURL != "" {
		body["image_url"] = p.ImageURL
	}
	return body
}

// CreateMaster inserts a new catalog entry.
func (s *RESTStore) CreateMaster(ctx context.Context, p model.MasterParams) (*model.CatalogEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := s.do(ctx, http.MethodPost, "/inventory_masters", nil, masterBody(p))
	if err != nil {
		return nil, err
	}
	masters, err := decodeMasterList(data)
	if err != nil {
		return nil, err
	}
	if len(masters) == 0 {
		return nil, eris.New("rest: create master returned no row")
	}
	return &masters[0], nil
}

// UpdateMaster rewrites the writable fields of a catalog entry.
func (s *RESTStore) UpdateMaster(ctx context.Context, id string, p model.MasterParams) (*model.CatalogEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("id", "eq."+id)
	body := masterBody(p)
	body["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := s.do(ctx, http.MethodPatch, "/inventory_masters", q, body)
	if err != nil {
		return nil, err
	}
	masters, err := decodeMasterList(data)
	if err != nil {
		return nil, err
	}
	if len(masters) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "rest: master %s", id)
	}
	return &masters[0], nil
}

// DeleteMaster removes a catalog entry.
func (s *RESTStore) DeleteMaster(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	_, err := s.do(ctx, http.MethodDelete, "/inventory_masters", q, nil)
	return err
}

// CreateItem registers one tag against a master.
func (s *RESTStore) CreateItem(ctx context.Context, tagID, masterID string) (*model.TrackedItem, error) {
	body := map[string]any{"tag_id": tagID, "master_id": masterID, "is_inventoried": false}
	data, err := s.do(ctx, http.MethodPost, "/items", nil, body)
	if err != nil {
		return nil, err
	}
	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil || len(rawRows) == 0 {
		return nil, eris.New("rest: create item returned no row")
	}
	row, err := model.DecodeItemRow(rawRows[0])
	if err != nil {
		return nil, eris.Wrap(err, "rest: decode created item")
	}
	return &row.Item, nil
}

// BulkCreateItems registers many tags against one master in a single POST.
func (s *RESTStore) BulkCreateItems(ctx context.Context, masterID string, tagIDs []string) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	body := make([]map[string]any, 0, len(tagIDs))
	for _, tag := range tagIDs {
		body = append(body, map[string]any{"tag_id": tag, "master_id": masterID, "is_inventoried": false})
	}
	data, err := s.do(ctx, http.MethodPost, "/items", nil, body)
	if err != nil {
		return 0, err
	}
	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return 0, eris.Wrap(err, "rest: decode bulk insert response")
	}
	return int64(len(rawRows)), nil
}

// FindItemByTag looks up one item with its joined master.
func (s *RESTStore) FindItemByTag(ctx context.Context, tagID string) (*model.ItemRow, error) {
	q := url.Values{}
	q.Set("select", "*,inventory_masters(*)")
	q.Set("tag_id", "eq."+tagID)
	q.Set("limit", "1")
	data, err := s.do(ctx, http.MethodGet, "/items", q, nil)
	if err != nil {
		return nil, err
	}
	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, eris.Wrap(err, "rest: response is not a row list")
	}
	if len(rawRows) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "rest: tag %s", tagID)
	}
	row, err := model.DecodeItemRow(rawRows[0])
	if err != nil {
		return nil, eris.Wrap(err, "rest: decode item row")
	}
	return &row, nil
}

// FetchStockLevels returns per-master item counts for the storefront.
func (s *RESTStore) FetchStockLevels(ctx context.Context) ([]model.MasterStock, error) {
	q := url.Values{}
	q.Set("select", "*,items(id,is_inventoried)")
	q.Set("order", "created_at.desc")
	data, err := s.do(ctx, http.MethodGet, "/inventory_masters", q, nil)
	if err != nil {
		return nil, err
	}

	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, eris.Wrap(err, "rest: response is not a master list")
	}

	out := make([]model.MasterStock, 0, len(rawRows))
	for i, raw := range rawRows {
		m, err := model.DecodeMasterRow(raw)
		if err != nil {
			zap.L().Warn("skipping malformed master row",
				zap.Int("index", i),
				zap.String("reason", err.Error()),
			)
			continue
		}
		st := model.MasterStock{Master: *m}
		if items, ok := raw["items"].([]any); ok {
			st.ItemCount = len(items)
			for _, it := range items {
				if obj, ok := it.(map[string]any); ok {
					if inv, _ := obj["is_inventoried"].(bool); inv {
						st.InventoriedCount++
					}
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Migrate is a no-op: the hosted backend owns its schema.
func (s *RESTStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op for the HTTP adapter.
func (s *RESTStore) Close() error { return nil }

var _ Store = (*RESTStore)(nil)
