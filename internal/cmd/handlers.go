package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction"
	"github.com/bazaarhq/bazaar/internal/auctionerrors"
)

// AuctionHandler exposes the auction admin surface over REST.
type AuctionHandler struct {
	app *auction.App
}

func NewAuctionHandler(app *auction.App) *AuctionHandler {
	return &AuctionHandler{app: app}
}

func (h *AuctionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auctions", h.handleCreate)
	mux.HandleFunc("GET /v1/auctions/{id}", h.handleGet)
	mux.HandleFunc("DELETE /v1/auctions/{id}", h.handleDelete)
	mux.HandleFunc("GET /v1/auctions/{id}/bids", h.handleListBids)
}

func (h *AuctionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req auction.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.app.CreateAuction(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AuctionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	a, err := h.app.GetAuction(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AuctionHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	if err := h.app.DeleteAuction(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuctionHandler) handleListBids(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	bids, err := h.app.ListBids(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// writeAppError maps app-layer errors to HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auctionerrors.ErrNotDeletable),
		errors.Is(err, auctionerrors.ErrAuctionEnded),
		errors.Is(err, auctionerrors.ErrAuctionNotStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auctionerrors.ErrInvalidSchedule),
		errors.Is(err, auctionerrors.ErrBidTooLow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("internal error handling auction request")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
