package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/bazaarhq/bazaar/internal/sqlutil"
)

// Repository reads and marks auction outbox rows. The relay runs on
// database/sql so SKIP LOCKED batches can be shared across replicas
// without fighting the main pgx pool.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FetchUnsentTx locks and returns up to limit unsent events in insertion
// order. Rows locked by another relay instance are skipped.
func (r *Repository) FetchUnsentTx(ctx context.Context, tx *sql.Tx, limit int32) ([]OutboxEvent, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, auction_id, event_type, payload, created_at, sent_at
		FROM auction_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var (
			event   OutboxEvent
			payload pqtype.NullRawMessage
			sentAt  sql.NullTime
		)
		if err := rows.Scan(&event.ID, &event.AuctionID, &event.EventType, &payload, &event.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.RawMessage)
		}
		event.SentAt = sqlutil.FromSqlTime(sentAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkSentTx stamps the given events as published.
func (r *Repository) MarkSentTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE auction_outbox
		SET sent_at = $1
		WHERE id = ANY($2::uuid[])`, time.Now().UTC(), pq.Array(raw))
	if err != nil {
		return fmt.Errorf("failed to mark outbox events as sent: %w", err)
	}
	return nil
}
