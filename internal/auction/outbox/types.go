package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types written to the auction_outbox table. The set is closed;
// the relay publishes each under its own NATS subject.
const (
	EventTypeAuctionStarted = "AuctionStarted"
	EventTypeAuctionEnded   = "AuctionEnded"
	EventTypeBidPlaced      = "BidPlaced"
)

// OutboxEvent represents an outbox row for the relay worker.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
