package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// Broadcaster is the fan-out entry point the processor drives.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg push.Message) push.BroadcastResult
}

// ReceiptStore records broadcast results for later lookup.
type ReceiptStore interface {
	Save(ctx context.Context, result push.BroadcastResult) error
}

// NewProcessor turns each validated domain event into one broadcast.
// Broadcasts are best-effort, so the processor always acks: a partially
// failed fan-out is a logged outcome, not a reason to redeliver the event.
func NewProcessor(
	broadcaster Broadcaster,
	store ReceiptStore, // nil when the receipt store is disabled
	logger *slog.Logger,
) messagepipeline.StreamProcessor[DomainEvent] {

	return func(ctx context.Context, original messagepipeline.Message, event *DomainEvent) error {
		procLogger := logger.With(
			"kind", event.Kind,
			"record_id", event.ID,
			"pubsub_msg_id", original.ID,
		)

		result := broadcaster.Broadcast(ctx, push.NewUpdateMessage(event.Kind, event.ID))

		if store != nil {
			if err := store.Save(ctx, result); err != nil {
				procLogger.Warn("Failed to save broadcast receipt", "broadcast_id", result.ID, "err", err)
			}
		}

		procLogger.Info("Broadcast dispatched",
			"broadcast_id", result.ID,
			"attempted", result.Attempted(),
			"failed", result.Failed(),
		)
		return nil
	}
}
