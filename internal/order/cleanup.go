package order

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/anvay/backend-dinetab/internal/events"
	"github.com/anvay/backend-dinetab/internal/session"
	"github.com/anvay/backend-dinetab/internal/tab"
)

// WireTrackingCleanup drops local state for batches the upstream no longer
// knows about. Polling stops on its own when a batch vanishes; this subscriber
// clears the stale registry record and session snapshot behind it.
func WireTrackingCleanup(bus *events.Bus, reg *tab.Registry, sessions *session.Store, logger zerolog.Logger) {
	if bus == nil {
		return
	}
	bus.Subscribe(events.TopicTrackingStopped, func(ctx context.Context, ev events.Event) {
		stop, ok := ev.Payload.(events.TrackingStopped)
		if !ok || stop.Cause != "not_found" {
			return
		}
		if reg != nil {
			reg.RemoveBatch(ev.EntityID)
		}
		if sessions != nil {
			if err := sessions.ClearBatch(ctx, ev.EntityID); err != nil {
				logger.Warn().Err(err).Str("batch_id", ev.EntityID).Msg("batch_session_cleanup_failed")
			}
		}
		logger.Info().Str("batch_id", ev.EntityID).Msg("vanished_batch_purged")
	})
}
