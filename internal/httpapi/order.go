package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cisasmendi/sistema-stock/internal/domain/order"
)

// OrderHandler serves checkout, presential sales and the order
// lifecycle. Ownership and role checks live in the service; the handler
// only shapes requests and responses.
type OrderHandler struct {
	orders *order.Service
}

// NewOrderHandler creates the order handler.
func NewOrderHandler(orders *order.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Register mounts the order routes.
func (h *OrderHandler) Register(r chi.Router) {
	r.Post("/orders/checkout", h.checkout)
	r.Post("/orders/presential", h.presential)
	r.Get("/orders", h.list)
	r.Get("/orders/mine", h.listMine)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/payment", h.confirmPayment)
	r.Post("/orders/{id}/shipping", h.assignShipping)
	r.Post("/orders/{id}/delivered", h.markDelivered)
	r.Post("/orders/{id}/cancel", h.cancel)
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	ContactPhone    string `json:"contact_phone"`
	Notes           string `json:"notes"`
}

func (h *OrderHandler) checkout(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.CreateFromCart(r.Context(), a, order.CheckoutRequest{
		ShippingAddress: req.ShippingAddress,
		ContactPhone:    req.ContactPhone,
		Notes:           req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

type presentialRequest struct {
	Items []saleItemRequest `json:"items"`
	Notes string            `json:"notes"`
}

type saleItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func (h *OrderHandler) presential(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req presentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]order.SaleItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.SaleItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.CreatePresentialSale(r.Context(), a, items, req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// list returns all orders for managers, optionally filtered by
// ?status=.
func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsManager() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var (
		os  []order.Order
		err error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := order.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
		os, err = h.orders.ListByStatus(r.Context(), status)
	} else {
		os, err = h.orders.List(r.Context())
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(os))
}

func (h *OrderHandler) listMine(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	os, err := h.orders.ListByUser(r.Context(), a.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(os))
}

// get returns a single order. Clients only see their own orders;
// managers see all.
func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !a.IsManager() && (o.UserID == nil || *o.UserID != a.ID) {
		// Hide existence from non-owners.
		writeError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type confirmPaymentRequest struct {
	ProofRef string `json:"proof_ref"`
}

func (h *OrderHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), a, id, req.ProofRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type assignShippingRequest struct {
	Code string `json:"code"`
}

func (h *OrderHandler) assignShipping(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req assignShippingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "shipping code is required")
		return
	}

	o, err := h.orders.AssignShippingCode(r.Context(), a, id, req.Code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) markDelivered(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.MarkDelivered(r.Context(), a, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.orders.Cancel(r.Context(), a.ID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
