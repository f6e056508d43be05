package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cisasmendi/sistema-stock/internal/domain/audit"
	"github.com/cisasmendi/sistema-stock/internal/domain/inventory"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

// ProductHandler serves the catalog endpoints. Reads go through the
// cache-aside layer; every write invalidates it.
type ProductHandler struct {
	products product.Repository
	ledger   inventory.Ledger
	audit    audit.Recorder
	cache    *ProductCache
}

// NewProductHandler creates the catalog handler.
func NewProductHandler(products product.Repository, ledger inventory.Ledger, auditor audit.Recorder, cache *ProductCache) *ProductHandler {
	return &ProductHandler{
		products: products,
		ledger:   ledger,
		audit:    auditor,
		cache:    cache,
	}
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request) {
	if b := h.cache.GetList(r.Context()); b != nil {
		writeRawJSON(w, b)
		return
	}

	ps, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := toProductResponses(ps)
	h.cache.SetList(r.Context(), resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProductHandler) listLowStock(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	ps, err := h.products.ListLowStock(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

func (h *ProductHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if b := h.cache.GetProduct(r.Context(), id); b != nil {
		writeRawJSON(w, b)
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := toProductResponse(*p)
	h.cache.SetProduct(r.Context(), id, resp)
	writeJSON(w, http.StatusOK, resp)
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	MinStock    int    `json:"min_stock"`
}

func (h *ProductHandler) create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	p := &product.Product{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.cache.Invalidate(r.Context(), nil)
	created, err := h.products.GetByID(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(*created))
}

func (h *ProductHandler) update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := &product.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		MinStock:    req.MinStock,
	}
	if err := h.products.Update(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.cache.Invalidate(r.Context(), &id)
	updated, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*updated))
}

func (h *ProductHandler) delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), &id)
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// adjustStock applies a manual stock correction through the ledger, so
// it obeys the same non-negative constraint as checkout.
func (h *ProductHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req adjustStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "delta must not be zero")
		return
	}

	var err error
	if req.Delta > 0 {
		err = h.ledger.Increment(r.Context(), id, req.Delta)
	} else {
		err = h.ledger.Decrement(r.Context(), id, -req.Delta)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.cache.Invalidate(r.Context(), &id)
	h.recordAdjustment(r, a.ID, id, req)

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *ProductHandler) recordAdjustment(r *http.Request, actorID, productID uuid.UUID, req adjustStockRequest) {
	e := audit.Event{
		ActorID:    actorID,
		Action:     audit.ActionStockAdjusted,
		EntityType: "product",
		EntityID:   productID.String(),
		Detail:     req.Reason,
	}
	if err := h.audit.Record(r.Context(), e); err != nil {
		zctx.From(r.Context()).Warn("record audit event", zap.Error(err))
	}
}

// pathID parses the {id} path parameter.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeRawJSON(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
