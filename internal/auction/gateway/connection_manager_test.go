package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/bazaar/internal/auctionerrors"
	"github.com/bazaarhq/bazaar/internal/models"
)

type fakeStore struct {
	auctions map[uuid.UUID]*models.Auction
	bidErr   error
	bids     []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{auctions: make(map[uuid.UUID]*models.Auction)}
}

func (s *fakeStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionerrors.ErrAuctionNotFound
	}
	return a, nil
}

func (s *fakeStore) PlaceBid(_ context.Context, _, _ uuid.UUID, amount int64) (uuid.UUID, error) {
	if s.bidErr != nil {
		return uuid.Nil, s.bidErr
	}
	s.bids = append(s.bids, amount)
	return uuid.New(), nil
}

func newTestManager(store *fakeStore, clock clockwork.Clock) *Manager {
	return NewManager(store, clock, DefaultConnectionConfig())
}

func newTestConnection(m *Manager) *Connection {
	c := &Connection{
		ID:      uuid.New().String(),
		UserID:  uuid.New(),
		Email:   "bidder@example.com",
		Send:    make(chan []byte, 8),
		Manager: m,
	}
	m.mu.Lock()
	m.conns[c] = true
	m.mu.Unlock()
	return c
}

func liveAuction(clock clockwork.Clock) *models.Auction {
	return &models.Auction{
		ID:      uuid.New(),
		Status:  models.AuctionStatusStarted,
		StartAt: clock.Now().Add(-time.Hour),
		EndAt:   clock.Now().Add(time.Hour),
	}
}

func receiveEvent(t *testing.T, c *Connection) AuctionEvent {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev AuctionEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on connection")
		return AuctionEvent{}
	}
}

func receiveError(t *testing.T, c *Connection) string {
	t.Helper()
	ev := receiveEvent(t, c)
	require.Equal(t, EventTypeError, ev.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload.Message
}

func requireNoEvent(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event on connection: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinInvalidAuctionID(t *testing.T) {
	m := newTestManager(newFakeStore(), clockwork.NewFakeClock())
	c := newTestConnection(m)

	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: "not-a-uuid"})
	require.Equal(t, "invalid auction id", receiveError(t, c))
	require.Nil(t, m.activeAuction(c))
}

func TestJoinUnknownAuction(t *testing.T) {
	m := newTestManager(newFakeStore(), clockwork.NewFakeClock())
	c := newTestConnection(m)

	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: uuid.New().String()})
	require.Equal(t, "auction not found", receiveError(t, c))
}

func TestJoinEndedAuction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()

	ended := liveAuction(clock)
	ended.Status = models.AuctionStatusEnded
	store.auctions[ended.ID] = ended

	expired := liveAuction(clock)
	expired.EndAt = clock.Now().Add(-time.Minute)
	store.auctions[expired.ID] = expired

	m := newTestManager(store, clock)

	for _, id := range []uuid.UUID{ended.ID, expired.ID} {
		c := newTestConnection(m)
		m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: id.String()})
		require.Equal(t, "auction has already ended", receiveError(t, c))
		require.Nil(t, m.activeAuction(c))
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	first := liveAuction(clock)
	second := liveAuction(clock)
	store.auctions[first.ID] = first
	store.auctions[second.ID] = second

	m := newTestManager(store, clock)
	c := newTestConnection(m)

	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: first.ID.String()})
	require.Equal(t, first.ID, *m.activeAuction(c))

	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: second.ID.String()})
	require.Equal(t, second.ID, *m.activeAuction(c))

	m.mu.RLock()
	require.Empty(t, m.rooms[first.ID])
	require.Len(t, m.rooms[second.ID], 1)
	m.mu.RUnlock()
}

func TestBidWithoutRoom(t *testing.T) {
	m := newTestManager(newFakeStore(), clockwork.NewFakeClock())
	c := newTestConnection(m)

	m.handleCommand(c, ClientCommand{Type: CommandBid, Amount: 100})
	require.Equal(t, "you are not in any auction", receiveError(t, c))
}

func TestBidRejectionGoesToBidderOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	bidder := newTestConnection(m)
	watcher := newTestConnection(m)
	m.handleCommand(bidder, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})
	m.handleCommand(watcher, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})

	store.bidErr = auctionerrors.ErrBidTooLow
	m.handleCommand(bidder, ClientCommand{Type: CommandBid, Amount: 100})

	require.Contains(t, receiveError(t, bidder), "bid")
	requireNoEvent(t, watcher)
}

func TestBidInfraFailureIsNotEchoedVerbatim(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	c := newTestConnection(m)
	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})

	store.bidErr = context.DeadlineExceeded
	m.handleCommand(c, ClientCommand{Type: CommandBid, Amount: 100})
	require.Equal(t, "bid could not be processed", receiveError(t, c))
}

func TestBidSuccessBroadcastsToRoom(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	bidder := newTestConnection(m)
	watcher := newTestConnection(m)
	m.handleCommand(bidder, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})
	m.handleCommand(watcher, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})

	m.handleCommand(bidder, ClientCommand{Type: CommandBid, Amount: 2500})
	require.Equal(t, []int64{2500}, store.bids)

	select {
	case msg := <-m.broadcastCh:
		require.Equal(t, a.ID, msg.AuctionID)
		require.Equal(t, EventTypeBidReceived, msg.Event.Type)
		var payload BidReceivedPayload
		require.NoError(t, json.Unmarshal(msg.Event.Data, &payload))
		require.Equal(t, int64(2500), payload.Amount)
		require.Equal(t, bidder.UserID, payload.Bidder.ID)
		require.Equal(t, bidder.Email, payload.Bidder.Email)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestInvalidBidAmountRejectedLocally(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	c := newTestConnection(m)
	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})

	m.handleCommand(c, ClientCommand{Type: CommandBid, Amount: 0})
	require.Equal(t, "invalid bid amount", receiveError(t, c))
	require.Empty(t, store.bids)
}

func TestLeaveCommand(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	c := newTestConnection(m)
	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})
	require.NotNil(t, m.activeAuction(c))

	m.handleCommand(c, ClientCommand{Type: CommandLeave})
	require.Nil(t, m.activeAuction(c))
}

func TestUnknownCommand(t *testing.T) {
	m := newTestManager(newFakeStore(), clockwork.NewFakeClock())
	c := newTestConnection(m)

	m.handleCommand(c, ClientCommand{Type: "subscribe"})
	require.Equal(t, "unknown command", receiveError(t, c))
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	b := liveAuction(clock)
	store.auctions[a.ID] = a
	store.auctions[b.ID] = b

	m := newTestManager(store, clock)
	inRoom := newTestConnection(m)
	elsewhere := newTestConnection(m)
	m.handleCommand(inRoom, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})
	m.handleCommand(elsewhere, ClientCommand{Type: CommandJoin, AuctionID: b.ID.String()})

	event, err := newEvent(EventTypeAuctionStart, map[string]string{"auction_id": a.ID.String()})
	require.NoError(t, err)
	m.handleBroadcast(BroadcastMessage{AuctionID: a.ID, Event: event})

	got := receiveEvent(t, inRoom)
	require.Equal(t, EventTypeAuctionStart, got.Type)
	requireNoEvent(t, elsewhere)
}

func TestStats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore()
	a := liveAuction(clock)
	store.auctions[a.ID] = a

	m := newTestManager(store, clock)
	c := newTestConnection(m)
	m.handleCommand(c, ClientCommand{Type: CommandJoin, AuctionID: a.ID.String()})

	conns, rooms := m.Stats()
	require.Equal(t, 1, conns)
	require.Equal(t, 1, rooms)
}

func TestSendAfterUnregisterIsSwallowed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestManager(newFakeStore(), clock)
	c := newTestConnection(m)

	m.unregisterConnection(c)

	_, open := <-c.Send
	require.False(t, open)

	// A broadcaster holding a stale snapshot of the room must not panic
	// when it sends to a connection that was unregistered in between.
	require.True(t, c.trySend([]byte(`{"type":"bid_received"}`)))
	m.sendError(c, "late error")
}

func TestUnregisterConnectionTwice(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestManager(newFakeStore(), clock)
	c := newTestConnection(m)

	m.unregisterConnection(c)
	m.unregisterConnection(c)
	c.closeSend()

	conns, _ := m.Stats()
	require.Equal(t, 0, conns)
}
