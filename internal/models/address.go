package models

import (
	"time"

	"github.com/google/uuid"
)

// ShippingAddress is a delivery destination owned by a user. Each user
// has at most one default address; auction resolution ships to it.
type ShippingAddress struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}
