package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVariant is the sellable unit the catalog exposes. Only the
// fields the auction engine touches are modeled here; the wider catalog
// CRUD lives outside this service.
type ProductVariant struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // currency minor units
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
}
