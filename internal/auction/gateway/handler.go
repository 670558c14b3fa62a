package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction/events"
	"github.com/bazaarhq/bazaar/internal/auction/lifecycle"
)

// WebSocketHandler handles WebSocket upgrade requests for the auction
// gateway and verifies the caller's token before upgrading.
type WebSocketHandler struct {
	manager   *Manager
	jwtSecret []byte
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(manager *Manager, jwtSecret string) *WebSocketHandler {
	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: []byte(jwtSecret),
	}
}

// HandleWebSocket authenticates the request and upgrades it. Clients pass
// the token either as a "token" query parameter or a bearer header.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, email, err := h.authenticate(r)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket auth failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.manager.UpgradeConnection(w, r, userID, email); err != nil {
		log.Error().Err(err).Msg("failed to establish WebSocket connection")
	}
}

// authenticate extracts and verifies the JWT, returning the caller's
// identity claims.
func (h *WebSocketHandler) authenticate(r *http.Request) (uuid.UUID, string, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if tokenString == "" {
		return uuid.Nil, "", fmt.Errorf("missing token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("sub claim is not a user id: %w", err)
	}

	email, _ := claims["email"].(string)
	return userID, email, nil
}

// HandleStats returns connection statistics.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	connections, rooms := h.manager.Stats()
	stats := map[string]interface{}{
		"active_connections": connections,
		"active_rooms":       rooms,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers WebSocket routes with the HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/auctions", h.HandleWebSocket)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}

// Subscribe wires lifecycle transitions into room broadcasts.
func (h *WebSocketHandler) Subscribe(ctrl *lifecycle.Controller) {
	ctrl.OnAuctionStart(func(p events.AuctionStartedPayload) {
		event, err := newEvent(EventTypeAuctionStart, p)
		if err != nil {
			log.Error().Err(err).Msg("failed to build auction_start event")
			return
		}
		h.manager.BroadcastToAuction(p.AuctionID, event)
	})

	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) {
		event, err := newEvent(EventTypeAuctionEnd, p)
		if err != nil {
			log.Error().Err(err).Msg("failed to build auction_end event")
			return
		}
		h.manager.BroadcastToAuction(p.AuctionID, event)
	})
}
