package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction/repository"
	"github.com/bazaarhq/bazaar/internal/auctionerrors"
	"github.com/bazaarhq/bazaar/internal/models"
)

// DefaultMinDuration is the minimum allowed auction length.
const DefaultMinDuration = 6 * time.Hour

// Repository defines what the app layer needs from the auction store.
type Repository interface {
	CreateAuction(ctx context.Context, req repository.CreateAuctionRequest) (*models.Auction, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	DeleteAuction(ctx context.Context, id uuid.UUID) error
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (uuid.UUID, error)
}

// Scheduler defines what the app layer needs from the lifecycle
// controller: arming and clearing an auction's transition timers.
type Scheduler interface {
	ScheduleStart(auctionID uuid.UUID, startAt time.Time)
	ScheduleEnd(auctionID uuid.UUID, endAt time.Time)
	Cancel(auctionID uuid.UUID)
}

// App handles auction business logic: request validation, the
// retry-once policy for transient store failures, and keeping the timer
// schedule in sync with auction writes.
type App struct {
	repo        Repository
	sched       Scheduler
	clock       clockwork.Clock
	minDuration time.Duration
}

func NewApp(repo Repository, sched Scheduler, clock clockwork.Clock, minDuration time.Duration) *App {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	return &App{
		repo:        repo,
		sched:       sched,
		clock:       clock,
		minDuration: minDuration,
	}
}

type CreateAuctionRequest struct {
	VariantID uuid.UUID `json:"variant_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	MinPrice  int64     `json:"min_price"`
}

// CreateAuction validates the schedule, persists the auction and arms
// both transition timers.
func (a *App) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	if err := a.validateSchedule(req); err != nil {
		return nil, err
	}

	// The id is fixed before the retry closure so a retried insert can
	// never create a second auction for one request.
	id := uuid.New()
	auction, err := withRetry(func() (*models.Auction, error) {
		return a.repo.CreateAuction(ctx, repository.CreateAuctionRequest{
			ID:        id,
			VariantID: req.VariantID,
			StartAt:   req.StartAt,
			EndAt:     req.EndAt,
			MinPrice:  req.MinPrice,
		})
	})
	if err != nil {
		return nil, err
	}

	a.sched.ScheduleStart(auction.ID, auction.StartAt)
	a.sched.ScheduleEnd(auction.ID, auction.EndAt)

	log.Info().
		Str("auction_id", auction.ID.String()).
		Time("start_at", auction.StartAt).
		Time("end_at", auction.EndAt).
		Msg("created auction")
	return auction, nil
}

func (a *App) validateSchedule(req CreateAuctionRequest) error {
	if req.MinPrice <= 0 {
		return fmt.Errorf("%w: minimum bid price must be positive", auctionerrors.ErrInvalidSchedule)
	}
	if !req.StartAt.After(a.clock.Now()) {
		return fmt.Errorf("%w: start time must be in the future", auctionerrors.ErrInvalidSchedule)
	}
	if req.EndAt.Sub(req.StartAt) < a.minDuration {
		return fmt.Errorf("%w: auction must run for at least %s", auctionerrors.ErrInvalidSchedule, a.minDuration)
	}
	return nil
}

func (a *App) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return withRetry(func() (*models.Auction, error) {
		return a.repo.GetAuction(ctx, id)
	})
}

// DeleteAuction removes a PENDING auction and clears its timers.
func (a *App) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	_, err := withRetry(func() (struct{}, error) {
		return struct{}{}, a.repo.DeleteAuction(ctx, id)
	})
	if err != nil {
		return err
	}
	a.sched.Cancel(id)
	return nil
}

func (a *App) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	return withRetry(func() ([]models.Bid, error) {
		return a.repo.ListBids(ctx, auctionID)
	})
}

// PlaceBid submits a bid on behalf of an authenticated bidder.
func (a *App) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (uuid.UUID, error) {
	return withRetry(func() (uuid.UUID, error) {
		return a.repo.PlaceBid(ctx, auctionID, bidderID, amount)
	})
}

// withRetry runs op, retrying exactly once on infrastructure failures.
// Client-facing rejections pass through untouched; a second failure is
// surfaced as ErrStoreUnavailable, fatal for this operation only.
func withRetry[T any](op func() (T, error)) (T, error) {
	out, err := op()
	if err == nil || auctionerrors.IsClientError(err) {
		return out, err
	}
	log.Warn().Err(err).Msg("auction store operation failed, retrying once")
	out, err = op()
	if err == nil || auctionerrors.IsClientError(err) {
		return out, err
	}
	var zero T
	return zero, fmt.Errorf("%w: %w", auctionerrors.ErrStoreUnavailable, err)
}
