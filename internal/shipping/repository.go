package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarhq/bazaar/internal/models"
)

// ErrNoAddress is returned when a user has no shipping address on file.
// Auction resolution treats this as "record the winner, skip the order".
var ErrNoAddress = errors.New("no shipping address on file")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateAddressRequest struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	IsDefault bool      `json:"is_default"`
}

// CreateAddress inserts a shipping address. Marking an address as default
// clears the flag from the user's other addresses in the same transaction.
func (r *Repository) CreateAddress(ctx context.Context, req CreateAddressRequest) (*models.ShippingAddress, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if req.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE shipping_addresses SET is_default = FALSE WHERE user_id = $1`,
			req.UserID,
		); err != nil {
			return nil, fmt.Errorf("failed to clear default address: %w", err)
		}
	}

	var addr models.ShippingAddress
	err = tx.QueryRow(ctx,
		`INSERT INTO shipping_addresses (id, user_id, address, phone, is_default)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, address, phone, is_default, created_at`,
		req.ID, req.UserID, req.Address, req.Phone, req.IsDefault,
	).Scan(&addr.ID, &addr.UserID, &addr.Address, &addr.Phone, &addr.IsDefault, &addr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create shipping address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &addr, nil
}

// ListByUser returns all addresses for a user, default first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ShippingAddress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, address, phone, is_default, created_at
		 FROM shipping_addresses
		 WHERE user_id = $1
		 ORDER BY is_default DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipping addresses: %w", err)
	}
	defer rows.Close()

	var addrs []models.ShippingAddress
	for rows.Next() {
		var a models.ShippingAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.Address, &a.Phone, &a.IsDefault, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shipping address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// DefaultForUserTx resolves the user's default address (falling back to
// the most recent one) within the scope of an existing transaction. The
// caller owns commit/rollback.
func (r *Repository) DefaultForUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.ShippingAddress, error) {
	var a models.ShippingAddress
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, address, phone, is_default, created_at
		 FROM shipping_addresses
		 WHERE user_id = $1
		 ORDER BY is_default DESC, created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.Address, &a.Phone, &a.IsDefault, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoAddress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default address: %w", err)
	}
	return &a, nil
}
