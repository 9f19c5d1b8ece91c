package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
	"github.com/kandelab/stocktake/internal/remote"
	"github.com/kandelab/stocktake/internal/shop"
)

// api exposes the reconciliation session and the catalog over HTTP for the
// handheld clients and the storefront.
type api struct {
	eng   *reconcile.Engine
	store remote.Store
	shop  *shop.Shop
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Post("/tags", a.handleIngest)
			r.Get("/state", a.handleState)
			r.Post("/clear", a.handleClear)
			r.Post("/scope", a.handleSelectScope)
			r.Post("/confirm", a.handleConfirm)
			r.Post("/reset", a.handleReset)
		})
		r.Route("/masters", func(r chi.Router) {
			r.Get("/", a.handleListMasters)
			r.Post("/", a.handleCreateMaster)
			r.Get("/{id}", a.handleGetMaster)
			r.Patch("/{id}", a.handleUpdateMaster)
			r.Delete("/{id}", a.handleDeleteMaster)
		})
		r.Route("/items", func(r chi.Router) {
			r.Post("/", a.handleCreateItem)
			r.Post("/bulk", a.handleBulkCreateItems)
			r.Get("/{tag}", a.handleFindItem)
		})
		r.Route("/shop", func(r chi.Router) {
			r.Get("/products", a.handleListProducts)
			r.Get("/products/{id}", a.handleGetProduct)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if eris.Is(err, remote.ErrNotFound) || eris.Is(err, reconcile.ErrUnknownTag) || eris.Is(err, shop.ErrProductNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (a *api) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Tags) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tags is required"})
		return
	}
	a.eng.Ingest(req.Tags)
	writeJSON(w, http.StatusAccepted, map[string]int{"received": len(req.Tags)})
}

func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.State())
}

func (a *api) handleClear(w http.ResponseWriter, r *http.Request) {
	a.eng.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleSelectScope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope string `json:"scope"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	scope, err := model.ParseScope(req.Scope)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sum, err := a.eng.SelectScope(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Tag == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tag is required"})
		return
	}
	a.eng.Confirm(req.Tag)
	writeJSON(w, http.StatusAccepted, map[string]string{"tag": req.Tag})
}

func (a *api) handleReset(w http.ResponseWriter, r *http.Request) {
	sum, err := a.eng.ResetScope(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) handleListMasters(w http.ResponseWriter, r *http.Request) {
	scope := model.TargetScope(r.URL.Query().Get("scope"))
	if scope != "" && !scope.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scope"})
		return
	}
	masters, err := a.store.ListMasters(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	if masters == nil {
		masters = []model.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, masters)
}

func (a *api) handleCreateMaster(w http.ResponseWriter, r *http.Request) {
	var p model.MasterParams
	if !decodeBody(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	m, err := a.store.CreateMaster(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *api) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	m, err := a.store.GetMaster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) handleUpdateMaster(w http.ResponseWriter, r *http.Request) {
	var p model.MasterParams
	if !decodeBody(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	m, err := a.store.UpdateMaster(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) handleDeleteMaster(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteMaster(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagID    string `json:"tag_id"`
		MasterID string `json:"master_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	tag, ok := model.NormalizeTag(req.TagID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tag_id"})
		return
	}
	if req.MasterID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "master_id is required"})
		return
	}
	item, err := a.store.CreateItem(r.Context(), tag, req.MasterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *api) handleBulkCreateItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MasterID string   `json:"master_id"`
		TagIDs   []string `json:"tag_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MasterID == "" || len(req.TagIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "master_id and tag_ids are required"})
		return
	}
	tags := make([]string, 0, len(req.TagIDs))
	for _, raw := range req.TagIDs {
		if tag, ok := model.NormalizeTag(raw); ok {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no valid tags"})
		return
	}
	n, err := a.store.BulkCreateItems(r.Context(), req.MasterID, tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"created": n})
}

func (a *api) handleFindItem(w http.ResponseWriter, r *http.Request) {
	tag, ok := model.NormalizeTag(chi.URLParam(r, "tag"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tag"})
		return
	}
	row, err := a.store.FindItemByTag(r.Context(), tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *api) handleListProducts(w http.ResponseWriter, r *http.Request) {
	scope := model.TargetScope(r.URL.Query().Get("scope"))
	if scope != "" && !scope.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scope"})
		return
	}
	products, err := a.shop.ListProducts(r.Context(), scope, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *api) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.shop.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
