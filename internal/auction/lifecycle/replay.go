package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Replay reconstructs in-memory timers from persisted state after a
// process restart. It must finish before the gateway accepts client
// connections so no client can join a room whose timers are not armed.
// Running it twice with no time elapsed produces the same timer schedule
// and no duplicate transitions: Set replaces timers in place and the
// store's transition operations are idempotent.
func (c *Controller) Replay(ctx context.Context) error {
	auctions, err := c.store.ListPendingOrActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list auctions for replay: %w", err)
	}

	now := c.clock.Now()
	for _, a := range auctions {
		switch {
		case !a.EndAt.After(now):
			// The process was down through the auction's remaining
			// lifetime. Resolve directly, no timer.
			log.Info().Str("auction_id", a.ID.String()).Msg("replay: auction expired while down, resolving")
			c.resolve(ctx, a.ID)

		case !a.StartAt.After(now):
			// Already running: only the end transition remains.
			if err := c.store.MarkStarted(ctx, a.ID); err != nil {
				log.Error().Err(err).Str("auction_id", a.ID.String()).Msg("replay: failed to mark auction started")
			}
			c.ScheduleEnd(a.ID, a.EndAt)

		default:
			// The end timer is armed up front; its delay is computed from
			// end_at alone and does not depend on the start timer firing.
			c.ScheduleStart(a.ID, a.StartAt)
			c.ScheduleEnd(a.ID, a.EndAt)
		}
	}

	log.Info().Int("count", len(auctions)).Msg("replayed auction timers")
	return nil
}
