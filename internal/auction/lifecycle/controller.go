package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction/events"
	"github.com/bazaarhq/bazaar/internal/auction/repository"
	"github.com/bazaarhq/bazaar/internal/auction/timer"
	"github.com/bazaarhq/bazaar/internal/mail"
	"github.com/bazaarhq/bazaar/internal/models"
)

// storeOpTimeout bounds the store call made from a timer fire.
const storeOpTimeout = 30 * time.Second

// Store defines what the controller needs from the auction store.
type Store interface {
	MarkStarted(ctx context.Context, id uuid.UUID) error
	MarkEndedAndResolve(ctx context.Context, id uuid.UUID) (*repository.Resolution, error)
	ListPendingOrActive(ctx context.Context) ([]models.AuctionSchedule, error)
}

// Controller owns the PENDING -> STARTED -> ENDED timer-driven
// transitions. It is constructed once at startup and handed to the
// replay pass and the broadcast gateway; subscriptions are typed rather
// than string-keyed. A transition that fails transiently is logged and
// left for the next process start's replay pass, never retried in a
// tight loop.
type Controller struct {
	store    Store
	timers   *timer.Registry
	clock    clockwork.Clock
	notifier mail.Notifier

	mu        sync.RWMutex
	startSubs []func(events.AuctionStartedPayload)
	endSubs   []func(events.AuctionEndedPayload)
}

func NewController(store Store, timers *timer.Registry, clock clockwork.Clock, notifier mail.Notifier) *Controller {
	return &Controller{
		store:    store,
		timers:   timers,
		clock:    clock,
		notifier: notifier,
	}
}

// OnAuctionStart registers a handler for auction-start broadcasts.
// Handlers must not block; the gateway's handler only enqueues.
func (c *Controller) OnAuctionStart(fn func(events.AuctionStartedPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startSubs = append(c.startSubs, fn)
}

// OnAuctionEnd registers a handler for auction-end broadcasts.
func (c *Controller) OnAuctionEnd(fn func(events.AuctionEndedPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endSubs = append(c.endSubs, fn)
}

// ScheduleStart arms the start timer for an auction. Re-registration
// under the same auction simply reschedules.
func (c *Controller) ScheduleStart(auctionID uuid.UUID, startAt time.Time) {
	c.timers.Set(startKey(auctionID), startAt.Sub(c.clock.Now()), func() {
		c.fireStart(auctionID)
	})
}

// ScheduleEnd arms the end timer for an auction. The end timer is
// registered independently of the start timer; its delay depends only on
// end_at, so replay can arm just the remaining transition.
func (c *Controller) ScheduleEnd(auctionID uuid.UUID, endAt time.Time) {
	c.timers.Set(endKey(auctionID), endAt.Sub(c.clock.Now()), func() {
		c.fireEnd(auctionID)
	})
}

// Cancel clears both timers for an auction, e.g. when a PENDING auction
// is deleted. No partial cancellation state is observable.
func (c *Controller) Cancel(auctionID uuid.UUID) {
	c.timers.Clear(startKey(auctionID))
	c.timers.Clear(endKey(auctionID))
}

func (c *Controller) fireStart(auctionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	log.Info().Str("auction_id", auctionID.String()).Msg("auction start timer fired")
	if err := c.store.MarkStarted(ctx, auctionID); err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("failed to mark auction started, leaving for replay")
		return
	}
	c.emitStart(events.AuctionStartedPayload{
		AuctionID: auctionID,
		StartedAt: c.clock.Now(),
	})
}

func (c *Controller) fireEnd(auctionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	log.Info().Str("auction_id", auctionID.String()).Msg("auction end timer fired")
	c.resolve(ctx, auctionID)
}

// resolve ends an auction, broadcasts the outcome and sends the
// best-effort mail notification. Shared by the end-timer fire and the
// replay pass (for auctions that expired while the process was down).
func (c *Controller) resolve(ctx context.Context, auctionID uuid.UUID) {
	res, err := c.store.MarkEndedAndResolve(ctx, auctionID)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("failed to resolve auction, leaving for replay")
		return
	}
	if res == nil {
		// Row vanished between scheduling and firing. Tolerated.
		return
	}

	c.emitEnd(events.AuctionEndedPayload{
		AuctionID: auctionID,
		WinnerID:  res.WinnerID,
		Amount:    res.Amount,
		EndedAt:   c.clock.Now(),
	})
	c.notify(ctx, res)
}

func (c *Controller) notify(ctx context.Context, res *repository.Resolution) {
	if c.notifier == nil {
		return
	}
	var err error
	if res.WinnerID != nil && res.WinnerEmail != nil {
		err = c.notifier.AuctionWon(ctx, *res.WinnerEmail, res.AuctionID, *res.Amount)
	} else {
		err = c.notifier.AuctionEndedWithoutBids(ctx, res.AuctionID)
	}
	if err != nil {
		log.Warn().Err(err).Str("auction_id", res.AuctionID.String()).Msg("auction outcome mail failed")
	}
}

func (c *Controller) emitStart(p events.AuctionStartedPayload) {
	c.mu.RLock()
	subs := make([]func(events.AuctionStartedPayload), len(c.startSubs))
	copy(subs, c.startSubs)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(p)
	}
}

func (c *Controller) emitEnd(p events.AuctionEndedPayload) {
	c.mu.RLock()
	subs := make([]func(events.AuctionEndedPayload), len(c.endSubs))
	copy(subs, c.endSubs)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(p)
	}
}

func startKey(id uuid.UUID) string { return id.String() + "-start" }
func endKey(id uuid.UUID) string   { return id.String() + "-end" }
