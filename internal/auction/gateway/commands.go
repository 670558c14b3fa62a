package gateway

// CommandType enumerates the client-emitted commands. The set is closed;
// unknown commands are answered with an error event.
type CommandType string

const (
	CommandJoin  CommandType = "join"
	CommandLeave CommandType = "leave"
	CommandBid   CommandType = "bid"
)

// ClientCommand is the single message shape clients send. AuctionID is
// set for join; Amount for bid.
type ClientCommand struct {
	Type      CommandType `json:"type"`
	AuctionID string      `json:"auction_id,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
}
