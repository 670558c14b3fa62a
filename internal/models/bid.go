package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is a single offer against an auction. Immutable once created;
// amounts of accepted bids on one auction are strictly increasing.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    int64     `json:"amount"` // currency minor units
	CreatedAt time.Time `json:"created_at"`
}
