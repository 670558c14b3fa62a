package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuctionEvent is the envelope for every server-emitted message.
type AuctionEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of server-emitted event.
type EventType string

const (
	EventTypeAuctionStart EventType = "auction_start"
	EventTypeAuctionEnd   EventType = "auction_end"
	EventTypeBidReceived  EventType = "bid_received"
	EventTypeError        EventType = "error"
)

// PublicIdentity is the bidder identity broadcast to room members.
type PublicIdentity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// BidReceivedPayload is broadcast to every room member after an
// accepted bid.
type BidReceivedPayload struct {
	Bidder PublicIdentity `json:"bidder"`
	Amount int64          `json:"amount"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

func newEvent(t EventType, payload any) (*AuctionEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return &AuctionEvent{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}
