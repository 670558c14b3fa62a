package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction/events"
	"github.com/bazaarhq/bazaar/internal/auction/outbox"
	"github.com/bazaarhq/bazaar/internal/auctionerrors"
	"github.com/bazaarhq/bazaar/internal/models"
	"github.com/bazaarhq/bazaar/internal/orders"
	"github.com/bazaarhq/bazaar/internal/shipping"
	"github.com/bazaarhq/bazaar/internal/sqlutil"
)

// BidPolicy fixes the bid-acceptance boundary. Bids must always strictly
// exceed the current highest bid; AllowEqualMinimum controls whether the
// first bid may equal the minimum price instead of exceeding it.
type BidPolicy struct {
	AllowEqualMinimum bool `yaml:"allow_equal_minimum"`
}

// Resolution is the outcome of ending an auction. Winner fields are nil
// when the auction closed without bids, and OrderID is nil additionally
// when the winner has no shipping address on file.
type Resolution struct {
	AuctionID   uuid.UUID  `json:"auction_id"`
	WinnerID    *uuid.UUID `json:"winner_id,omitempty"`
	WinnerEmail *string    `json:"winner_email,omitempty"`
	Amount      *int64     `json:"amount,omitempty"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
}

// Repository is the only component permitted to mutate auction and bid
// rows. Status transitions and bid placement run as single transactions;
// concurrent bids on one auction serialize on a row-level lock.
type Repository struct {
	pool     *pgxpool.Pool
	policy   BidPolicy
	orders   *orders.Repository
	shipping *shipping.Repository
	clock    clockwork.Clock
}

func NewRepository(pool *pgxpool.Pool, policy BidPolicy, ordersRepo *orders.Repository, shippingRepo *shipping.Repository, clock clockwork.Clock) *Repository {
	return &Repository{
		pool:     pool,
		policy:   policy,
		orders:   ordersRepo,
		shipping: shippingRepo,
		clock:    clock,
	}
}

type CreateAuctionRequest struct {
	ID        uuid.UUID `json:"id"`
	VariantID uuid.UUID `json:"variant_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	MinPrice  int64     `json:"min_price"`
}

func (r *Repository) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	var a models.Auction
	err := r.pool.QueryRow(ctx,
		`INSERT INTO auctions (id, variant_id, status, start_at, end_at, min_price)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, variant_id, status, start_at, end_at, min_price, winner_id, created_at, updated_at`,
		req.ID, req.VariantID, models.AuctionStatusPending, req.StartAt, req.EndAt, req.MinPrice,
	).Scan(&a.ID, &a.VariantID, &a.Status, &a.StartAt, &a.EndAt, &a.MinPrice, &a.WinnerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return &a, nil
}

func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var a models.Auction
	err := r.pool.QueryRow(ctx,
		`SELECT id, variant_id, status, start_at, end_at, min_price, winner_id, created_at, updated_at
		 FROM auctions WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.VariantID, &a.Status, &a.StartAt, &a.EndAt, &a.MinPrice, &a.WinnerID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auctionerrors.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return &a, nil
}

// DeleteAuction removes an auction that has not started yet. Auctions are
// never deleted once STARTED.
func (r *Repository) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	return sqlutil.RunPgx(ctx, r.pool, func(tx pgx.Tx) error {
		var status models.AuctionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM auctions WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return auctionerrors.ErrAuctionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load auction for delete: %w", err)
		}
		if status != models.AuctionStatusPending {
			return auctionerrors.ErrNotDeletable
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bids WHERE auction_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete bids: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete auction: %w", err)
		}
		return nil
	})
}

// ListBids returns an auction's bids ordered by amount descending with
// creation time as the deterministic tie-break.
func (r *Repository) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount, created_at
		 FROM bids
		 WHERE auction_id = $1
		 ORDER BY amount DESC, created_at ASC`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// PlaceBid validates and inserts a bid as one atomic unit. The auction
// row is locked FOR UPDATE so two simultaneous bids cannot both pass the
// highest-bid check; accepted amounts are strictly increasing in commit
// order.
func (r *Repository) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (uuid.UUID, error) {
	bidID := uuid.New()
	err := sqlutil.RunPgx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			status   models.AuctionStatus
			endAt    time.Time
			minPrice int64
		)
		err := tx.QueryRow(ctx,
			`SELECT status, end_at, min_price FROM auctions WHERE id = $1 FOR UPDATE`,
			auctionID,
		).Scan(&status, &endAt, &minPrice)
		if errors.Is(err, pgx.ErrNoRows) {
			return auctionerrors.ErrAuctionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load auction for bid: %w", err)
		}

		now := r.clock.Now()
		if status == models.AuctionStatusEnded || !now.Before(endAt) {
			return auctionerrors.ErrAuctionEnded
		}
		if status == models.AuctionStatusPending {
			return auctionerrors.ErrAuctionNotStarted
		}

		var highest int64
		err = tx.QueryRow(ctx,
			`SELECT amount FROM bids WHERE auction_id = $1 ORDER BY amount DESC, created_at ASC LIMIT 1`,
			auctionID,
		).Scan(&highest)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if !r.policy.Accepts(amount, minPrice, nil) {
				return auctionerrors.ErrBidTooLow
			}
		case err != nil:
			return fmt.Errorf("failed to load highest bid: %w", err)
		default:
			if !r.policy.Accepts(amount, minPrice, &highest) {
				return auctionerrors.ErrBidTooLow
			}
		}

		var placedAt time.Time
		err = tx.QueryRow(ctx,
			`INSERT INTO bids (id, auction_id, bidder_id, amount)
			 VALUES ($1, $2, $3, $4)
			 RETURNING created_at`,
			bidID, auctionID, bidderID, amount,
		).Scan(&placedAt)
		if err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		return r.insertOutboxTx(ctx, tx, auctionID, outbox.EventTypeBidPlaced, events.BidPlacedPayload{
			AuctionID: auctionID,
			BidID:     bidID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  placedAt,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return bidID, nil
}

// Accepts reports whether amount clears the bidding bar. highest is nil
// when the auction has no bids yet.
func (p BidPolicy) Accepts(amount, minPrice int64, highest *int64) bool {
	if highest != nil {
		return amount > *highest
	}
	if p.AllowEqualMinimum {
		return amount >= minPrice
	}
	return amount > minPrice
}

// MarkStarted transitions PENDING -> STARTED. It is idempotent and
// tolerates a vanished row (the auction may have been deleted between
// scheduling and firing).
func (r *Repository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	return sqlutil.RunPgx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE auctions SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
			id, models.AuctionStatusStarted, models.AuctionStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to mark auction started: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check auction existence: %w", err)
			}
			if !exists {
				log.Warn().Str("auction_id", id.String()).Msg("couldn't mark auction as started, row no longer exists")
			}
			// Already STARTED or ENDED: nothing to do.
			return nil
		}
		return r.insertOutboxTx(ctx, tx, id, outbox.EventTypeAuctionStarted, events.AuctionStartedPayload{
			AuctionID: id,
			StartedAt: r.clock.Now(),
		})
	})
}

// MarkEndedAndResolve transitions an auction to ENDED and resolves the
// winner in one transaction: record the winner, reserve the sold unit by
// decrementing variant stock, and create a PENDING order at the winning
// amount. With zero bids the auction just ends; stock is untouched and no
// order is created. Calling it on an already-ENDED auction returns the
// recorded outcome without side effects, which keeps replay idempotent.
// A vanished row yields (nil, nil).
func (r *Repository) MarkEndedAndResolve(ctx context.Context, id uuid.UUID) (*Resolution, error) {
	var res *Resolution
	err := sqlutil.RunPgx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			status    models.AuctionStatus
			variantID uuid.UUID
			winnerID  uuid.NullUUID
		)
		err := tx.QueryRow(ctx,
			`SELECT status, variant_id, winner_id FROM auctions WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&status, &variantID, &winnerID)
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Str("auction_id", id.String()).Msg("couldn't resolve auction, row no longer exists")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load auction for resolution: %w", err)
		}

		if status == models.AuctionStatusEnded {
			res = &Resolution{AuctionID: id, WinnerID: sqlutil.FromNullUUID(winnerID)}
			if res.WinnerID != nil {
				if err := tx.QueryRow(ctx,
					`SELECT b.amount, u.email
					 FROM bids b JOIN users u ON u.id = b.bidder_id
					 WHERE b.auction_id = $1
					 ORDER BY b.amount DESC, b.created_at ASC
					 LIMIT 1`,
					id,
				).Scan(&res.Amount, &res.WinnerEmail); err != nil {
					return fmt.Errorf("failed to load recorded winner: %w", err)
				}
			}
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE auctions SET status = $2, updated_at = now() WHERE id = $1`,
			id, models.AuctionStatusEnded,
		); err != nil {
			return fmt.Errorf("failed to mark auction ended: %w", err)
		}

		var (
			bidderID uuid.UUID
			amount   int64
			email    string
		)
		err = tx.QueryRow(ctx,
			`SELECT b.bidder_id, b.amount, u.email
			 FROM bids b JOIN users u ON u.id = b.bidder_id
			 WHERE b.auction_id = $1
			 ORDER BY b.amount DESC, b.created_at ASC
			 LIMIT 1`,
			id,
		).Scan(&bidderID, &amount, &email)
		if errors.Is(err, pgx.ErrNoRows) {
			// Ended without bids: no winner, no stock reservation, no order.
			res = &Resolution{AuctionID: id}
			return r.insertOutboxTx(ctx, tx, id, outbox.EventTypeAuctionEnded, events.AuctionEndedPayload{
				AuctionID: id,
				EndedAt:   r.clock.Now(),
			})
		}
		if err != nil {
			return fmt.Errorf("failed to load winning bid: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE auctions SET winner_id = $2 WHERE id = $1`,
			id, bidderID,
		); err != nil {
			return fmt.Errorf("failed to record winner: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE product_variants SET stock = stock - 1 WHERE id = $1 AND stock > 0`,
			variantID,
		)
		if err != nil {
			return fmt.Errorf("failed to reserve variant stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			log.Warn().
				Str("auction_id", id.String()).
				Str("variant_id", variantID.String()).
				Msg("variant out of stock at resolution, order still created")
		}

		res = &Resolution{
			AuctionID:   id,
			WinnerID:    &bidderID,
			WinnerEmail: &email,
			Amount:      &amount,
		}

		addr, err := r.shipping.DefaultForUserTx(ctx, tx, bidderID)
		if errors.Is(err, shipping.ErrNoAddress) {
			log.Error().
				Str("auction_id", id.String()).
				Str("bidder_id", bidderID.String()).
				Msg("winner has no shipping address, skipping order creation")
		} else if err != nil {
			return err
		} else {
			order, err := r.orders.CreateFromAuctionTx(ctx, tx, orders.CreateFromAuctionRequest{
				ID:                uuid.New(),
				UserID:            bidderID,
				ShippingAddressID: addr.ID,
				VariantID:         variantID,
				Price:             amount,
			})
			if err != nil {
				return err
			}
			res.OrderID = &order.ID
		}

		return r.insertOutboxTx(ctx, tx, id, outbox.EventTypeAuctionEnded, events.AuctionEndedPayload{
			AuctionID: id,
			WinnerID:  res.WinnerID,
			Amount:    res.Amount,
			EndedAt:   r.clock.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListPendingOrActive returns the schedule of every auction that has not
// ended. Used exclusively by the replay pass.
func (r *Repository) ListPendingOrActive(ctx context.Context) ([]models.AuctionSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, start_at, end_at
		 FROM auctions
		 WHERE status = $1 OR status = $2`,
		models.AuctionStatusPending, models.AuctionStatusStarted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending or active auctions: %w", err)
	}
	defer rows.Close()

	var out []models.AuctionSchedule
	for rows.Next() {
		var s models.AuctionSchedule
		if err := rows.Scan(&s.ID, &s.Status, &s.StartAt, &s.EndAt); err != nil {
			return nil, fmt.Errorf("failed to scan auction schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) insertOutboxTx(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO auction_outbox (id, auction_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), auctionID, eventType, data,
	); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}
