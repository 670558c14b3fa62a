package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auctionerrors"
	"github.com/bazaarhq/bazaar/internal/models"
)

// bidOpTimeout bounds the store call made for one client bid.
const bidOpTimeout = 10 * time.Second

// Store defines what the gateway needs from the auction app layer.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (uuid.UUID, error)
}

// Manager maps WebSocket connections to auction rooms and fans events
// out to room members. Room membership is process-local; clients joining
// after an event fired do not see a replay of it.
type Manager struct {
	rooms map[uuid.UUID]map[*Connection]bool
	conns map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	store    Store
	clock    clockwork.Clock

	broadcastCh chan BroadcastMessage
}

// Connection represents one authenticated WebSocket client.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	Email   string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Manager

	// auctionID is the active room; nil until a join succeeds.
	// Guarded by Manager.mu.
	auctionID *uuid.UUID

	// sendMu orders trySend against closeSend; once sendClosed is set
	// the Send channel is closed and no goroutine may send on it.
	sendMu     sync.Mutex
	sendClosed bool

	ConnectedAt time.Time
	LastPing    time.Time
}

// trySend enqueues data without blocking. It reports false only when the
// buffer is full; a closed connection swallows the message.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the Send channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event to fan out to one auction room.
type BroadcastMessage struct {
	AuctionID uuid.UUID
	Event     *AuctionEvent
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewManager creates a gateway connection manager.
func NewManager(store Store, clock clockwork.Clock, config ConnectionConfig) *Manager {
	return &Manager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		conns: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		store:       store,
		clock:       clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages. Call after the replay pass
// has armed all timers.
func (m *Manager) Start(ctx context.Context) {
	log.Info().Msg("auction gateway started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auction gateway shutting down")
			return
		case message := <-m.broadcastCh:
			m.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection
// carrying an authenticated identity. The connection joins no room until
// its first successful join command.
func (m *Manager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID, email string) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Email:       email,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     m,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	m.mu.Lock()
	m.conns[connection] = true
	m.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Msg("WebSocket connection established")
	return nil
}

// BroadcastToAuction enqueues an event for every member of an auction's
// room. Never blocks the caller; events are dropped if the channel is
// full.
func (m *Manager) BroadcastToAuction(auctionID uuid.UUID, event *AuctionEvent) {
	select {
	case m.broadcastCh <- BroadcastMessage{AuctionID: auctionID, Event: event}:
	default:
		log.Warn().Str("auction_id", auctionID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (m *Manager) handleBroadcast(message BroadcastMessage) {
	m.mu.RLock()
	members, exists := m.rooms[message.AuctionID]
	if !exists {
		m.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(members))
	for conn := range members {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.trySend(data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Msg("connection send buffer full, closing connection")
			m.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("auction_id", message.AuctionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// joinRoom moves a connection into the room named by auctionID, leaving
// any previously joined room first.
func (m *Manager) joinRoom(c *Connection, auctionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveRoomLocked(c)
	if m.rooms[auctionID] == nil {
		m.rooms[auctionID] = make(map[*Connection]bool)
	}
	m.rooms[auctionID][c] = true
	c.auctionID = &auctionID

	log.Debug().
		Str("connection_id", c.ID).
		Str("auction_id", auctionID.String()).
		Int("room_size", len(m.rooms[auctionID])).
		Msg("connection joined auction room")
}

func (m *Manager) leaveRoom(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveRoomLocked(c)
}

// leaveRoomLocked removes c from its room. Caller holds m.mu.
func (m *Manager) leaveRoomLocked(c *Connection) {
	if c.auctionID == nil {
		return
	}
	if members, ok := m.rooms[*c.auctionID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(m.rooms, *c.auctionID)
		}
	}
	c.auctionID = nil
}

// activeAuction returns the connection's current room, if any.
func (m *Manager) activeAuction(c *Connection) *uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return c.auctionID
}

func (m *Manager) unregisterConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[c]; !ok {
		return
	}
	m.leaveRoomLocked(c)
	delete(m.conns, c)
	c.closeSend()

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID.String()).
		Msg("connection unregistered")
}

// Stats returns counts of active connections and rooms.
func (m *Manager) Stats() (connections, rooms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns), len(m.rooms)
}

// handleCommand routes one parsed client command.
func (m *Manager) handleCommand(c *Connection, cmd ClientCommand) {
	switch cmd.Type {
	case CommandJoin:
		m.handleJoin(c, cmd.AuctionID)
	case CommandLeave:
		m.leaveRoom(c)
	case CommandBid:
		m.handleBid(c, cmd.Amount)
	default:
		m.sendError(c, "unknown command")
	}
}

func (m *Manager) handleJoin(c *Connection, rawID string) {
	auctionID, err := uuid.Parse(rawID)
	if err != nil {
		m.sendError(c, "invalid auction id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bidOpTimeout)
	defer cancel()

	auction, err := m.store.GetAuction(ctx, auctionID)
	if errors.Is(err, auctionerrors.ErrAuctionNotFound) {
		m.sendError(c, "auction not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("auction lookup failed on join")
		m.sendError(c, "auction lookup failed")
		return
	}
	if auction.Status == models.AuctionStatusEnded || !m.clock.Now().Before(auction.EndAt) {
		m.sendError(c, "auction has already ended")
		return
	}

	m.joinRoom(c, auctionID)
}

func (m *Manager) handleBid(c *Connection, amount int64) {
	auctionID := m.activeAuction(c)
	if auctionID == nil {
		m.sendError(c, "you are not in any auction")
		return
	}
	if amount <= 0 {
		m.sendError(c, "invalid bid amount")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bidOpTimeout)
	defer cancel()

	if _, err := m.store.PlaceBid(ctx, *auctionID, c.UserID, amount); err != nil {
		if auctionerrors.IsClientError(err) {
			m.sendError(c, err.Error())
		} else {
			log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("bid placement failed")
			m.sendError(c, "bid could not be processed")
		}
		return
	}

	event, err := newEvent(EventTypeBidReceived, BidReceivedPayload{
		Bidder: PublicIdentity{ID: c.UserID, Email: c.Email},
		Amount: amount,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build bid_received event")
		return
	}
	m.BroadcastToAuction(*auctionID, event)
}

// sendError emits an error event to the originating connection only.
// Rejected bids are never broadcast.
func (m *Manager) sendError(c *Connection, message string) {
	event, err := newEvent(EventTypeError, ErrorPayload{Message: message})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error event")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal error event")
		return
	}
	if !c.trySend(data) {
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping error event")
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		var cmd ClientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.Manager.sendError(c, "invalid message")
		} else {
			c.Manager.handleCommand(c, cmd)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
