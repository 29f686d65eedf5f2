// Package dispatch fans a domain event out to every registered endpoint on
// every configured platform. Delivery is best-effort: one endpoint's
// failure never stops the remaining attempts, and the caller gets counts,
// not exceptions.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tinywideclouds/gasp-push-gateway/internal/codec"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

type Dispatcher struct {
	platforms  []push.Platform
	registries *registry.Set
	gateway    push.Gateway
	logger     *slog.Logger
}

// NewDispatcher targets every platform the registry set was built for.
func NewDispatcher(registries *registry.Set, gateway push.Gateway, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		platforms:  registries.Platforms(),
		registries: registries,
		gateway:    gateway,
		logger:     logger.With("component", "Dispatcher"),
	}
}

// Broadcast encodes the message once per platform, snapshots that
// platform's registry once, and attempts a send to every endpoint in the
// snapshot. Endpoints the provider reports as disabled are pruned from the
// registry after the platform's loop. Broadcast always completes and never
// returns an error; per-endpoint failures are logged and counted.
func (d *Dispatcher) Broadcast(ctx context.Context, msg push.Message) push.BroadcastResult {
	result := push.BroadcastResult{
		ID:        uuid.NewString(),
		Platforms: make(map[push.Platform]push.PlatformDelivery, len(d.platforms)),
	}

	for _, platform := range d.platforms {
		result.Platforms[platform] = d.broadcastPlatform(ctx, platform, msg)
	}

	broadcastCounter.Inc()
	d.logger.Info("Broadcast complete",
		"broadcast_id", result.ID,
		"attempted", result.Attempted(),
		"failed", result.Failed(),
	)
	return result
}

func (d *Dispatcher) broadcastPlatform(ctx context.Context, platform push.Platform, msg push.Message) push.PlatformDelivery {
	var delivery push.PlatformDelivery

	payload, err := codec.Encode(platform, msg)
	if err != nil {
		d.logger.Error("Encoding failed, skipping platform", "platform", platform, "err", err)
		return delivery
	}

	reg, ok := d.registries.For(platform)
	if !ok {
		return delivery
	}

	// One snapshot per platform per broadcast: registrations landing after
	// this point catch the next broadcast.
	entries := reg.Entries()

	var stale []registry.Entry
	for _, entry := range entries {
		delivery.Attempted++
		if err := d.gateway.Send(ctx, entry.Endpoint, payload); err != nil {
			delivery.Failed++
			sendCounter.WithLabelValues(string(platform), "error").Inc()
			d.logger.Error("Send failed",
				"platform", platform,
				"endpoint", entry.Endpoint,
				"err", err,
			)
			if errors.Is(err, push.ErrEndpointDisabled) {
				stale = append(stale, entry)
			}
			continue
		}
		sendCounter.WithLabelValues(string(platform), "success").Inc()
	}

	for _, entry := range stale {
		if reg.RemoveIf(entry.Device, entry.Endpoint) {
			delivery.Pruned++
			d.logger.Info("Pruned disabled endpoint", "platform", platform, "endpoint", entry.Endpoint)
		}
	}
	return delivery
}
