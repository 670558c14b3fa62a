package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarhq/bazaar/internal/models"
)

// ErrOrderNotFound is returned when no order exists with the given id.
var ErrOrderNotFound = errors.New("order not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateFromAuctionRequest describes the single-item order created for
// the winning bidder at the winning bid price.
type CreateFromAuctionRequest struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	ShippingAddressID uuid.UUID `json:"shipping_address_id"`
	VariantID         uuid.UUID `json:"variant_id"`
	Price             int64     `json:"price"`
}

// CreateFromAuctionTx inserts a PENDING order with one line item inside
// the caller's transaction. Auction resolution calls this so the order
// commits or rolls back atomically with the status transition.
func (r *Repository) CreateFromAuctionTx(ctx context.Context, tx pgx.Tx, req CreateFromAuctionRequest) (*models.Order, error) {
	var order models.Order
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, shipping_address_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, shipping_address_id, status, created_at`,
		req.ID, req.UserID, req.ShippingAddressID, models.OrderStatusPending,
	).Scan(&order.ID, &order.UserID, &order.ShippingAddressID, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	var item models.OrderItem
	err = tx.QueryRow(ctx,
		`INSERT INTO order_items (id, order_id, variant_id, quantity, price)
		 VALUES ($1, $2, $3, 1, $4)
		 RETURNING id, order_id, variant_id, quantity, price`,
		uuid.New(), order.ID, req.VariantID, req.Price,
	).Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Quantity, &item.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to create order item: %w", err)
	}

	order.Items = []models.OrderItem{item}
	return &order, nil
}

// GetOrder returns an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, shipping_address_id, status, created_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&order.ID, &order.UserID, &order.ShippingAddressID, &order.Status, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, variant_id, quantity, price
		 FROM order_items WHERE order_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

// ListByUser returns a user's orders, newest first, without items.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, shipping_address_id, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShippingAddressID, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
