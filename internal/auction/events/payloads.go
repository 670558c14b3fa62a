package events

import (
	"time"

	"github.com/google/uuid"
)

// Event payload types shared between the lifecycle controller, the
// broadcast gateway and the outbox relay.

// AuctionStartedPayload is the payload for an AuctionStarted event.
type AuctionStartedPayload struct {
	AuctionID uuid.UUID `json:"auction_id"`
	StartedAt time.Time `json:"started_at"`
}

// AuctionEndedPayload is the payload for an AuctionEnded event. WinnerID
// and Amount are nil when the auction closed without bids.
type AuctionEndedPayload struct {
	AuctionID uuid.UUID  `json:"auction_id"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
	Amount    *int64     `json:"amount,omitempty"`
	EndedAt   time.Time  `json:"ended_at"`
}

// BidPlacedPayload is the payload for a BidPlaced event.
type BidPlacedPayload struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidID     uuid.UUID `json:"bid_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}
