package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the lifecycle status of an auction.
type AuctionStatus string

const (
	AuctionStatusPending AuctionStatus = "PENDING"
	AuctionStatusStarted AuctionStatus = "STARTED"
	AuctionStatusEnded   AuctionStatus = "ENDED"
)

// Auction represents a timed sale of one product variant.
// Status transitions are monotonic: PENDING -> STARTED -> ENDED.
type Auction struct {
	ID        uuid.UUID     `json:"id"`
	VariantID uuid.UUID     `json:"variant_id"`
	Status    AuctionStatus `json:"status"`
	StartAt   time.Time     `json:"start_at"`
	EndAt     time.Time     `json:"end_at"`
	MinPrice  int64         `json:"min_price"` // currency minor units
	WinnerID  *uuid.UUID    `json:"winner_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AuctionSchedule is the slice of an auction the replay pass needs.
type AuctionSchedule struct {
	ID      uuid.UUID     `json:"id"`
	Status  AuctionStatus `json:"status"`
	StartAt time.Time     `json:"start_at"`
	EndAt   time.Time     `json:"end_at"`
}
