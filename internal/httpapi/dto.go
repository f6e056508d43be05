package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/cisasmendi/sistema-stock/internal/domain/cart"
	"github.com/cisasmendi/sistema-stock/internal/domain/order"
	"github.com/cisasmendi/sistema-stock/internal/domain/product"
)

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
	LowStock    bool      `json:"low_stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		MinStock:    p.MinStock,
		LowStock:    p.LowStock(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductResponses(ps []product.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i, p := range ps {
		out[i] = toProductResponse(p)
	}
	return out
}

type cartItemResponse struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Quantity      int       `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	Subtotal      string    `json:"subtotal"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type cartResponse struct {
	ID    uuid.UUID          `json:"id"`
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, item := range c.Items {
		items[i] = cartItemResponse{
			ID:            item.ID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice.StringFixed(2),
			Subtotal:      item.Subtotal().StringFixed(2),
			ReservedUntil: item.ReservedUntil,
		}
	}
	return cartResponse{
		ID:    c.ID,
		Items: items,
		Total: c.Total().StringFixed(2),
	}
}

type orderLineResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   *uuid.UUID `json:"product_id,omitempty"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	UnitPrice   string     `json:"unit_price"`
	Subtotal    string     `json:"subtotal"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          *uuid.UUID          `json:"user_id,omitempty"`
	Lines           []orderLineResponse `json:"lines"`
	Total           string              `json:"total"`
	Status          order.Status        `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	DispatchedAt    *time.Time          `json:"dispatched_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	ReservedUntil   *time.Time          `json:"reserved_until,omitempty"`
	ShippingCode    string              `json:"shipping_code,omitempty"`
	PaymentProof    string              `json:"payment_proof,omitempty"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	ContactPhone    string              `json:"contact_phone,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Presential      bool                `json:"presential"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lr := orderLineResponse{
			ID:          l.ID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Subtotal:    l.Subtotal().StringFixed(2),
		}
		if l.ProductID.Valid {
			id := l.ProductID.UUID
			lr.ProductID = &id
		}
		lines[i] = lr
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Lines:           lines,
		Total:           o.Total.StringFixed(2),
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		PaidAt:          o.PaidAt,
		DispatchedAt:    o.DispatchedAt,
		DeliveredAt:     o.DeliveredAt,
		ReservedUntil:   o.ReservedUntil,
		ShippingCode:    o.ShippingCode,
		PaymentProof:    o.PaymentProof,
		ShippingAddress: o.ShippingAddress,
		ContactPhone:    o.ContactPhone,
		Notes:           o.Notes,
		Presential:      o.Presential,
	}
}

func toOrderResponses(os []order.Order) []orderResponse {
	out := make([]orderResponse, len(os))
	for i := range os {
		out[i] = toOrderResponse(&os[i])
	}
	return out
}
