package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus defines the payment status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order groups purchased items for one buyer. Auction resolution creates
// a single-item PENDING order for the winning bidder.
type Order struct {
	ID                uuid.UUID   `json:"id"`
	UserID            uuid.UUID   `json:"user_id"`
	ShippingAddressID uuid.UUID   `json:"shipping_address_id"`
	Status            OrderStatus `json:"status"`
	Items             []OrderItem `json:"items,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// OrderItem is one line of an order at the price agreed at purchase time.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"` // currency minor units
}
