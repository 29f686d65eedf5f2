// Package registrar owns the registration lifecycle: creating platform
// applications at startup, binding devices to provider endpoints, and
// releasing endpoints again. It is the only writer of the endpoint
// registries.
package registrar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

type Registrar struct {
	gateway    push.Gateway
	registries *registry.Set
	apps       map[push.Platform]push.PlatformApplication
	logger     *slog.Logger
}

// Bootstrap creates one platform application per entry in credentials.
// Any failure aborts startup: applications already created are deleted
// again so no partial setup is left dangling at the provider.
func Bootstrap(
	ctx context.Context,
	gateway push.Gateway,
	registries *registry.Set,
	applicationName string,
	credentials map[push.Platform]push.Credentials,
	logger *slog.Logger,
) (*Registrar, error) {
	if applicationName == "" {
		return nil, fmt.Errorf("application name is required")
	}

	r := &Registrar{
		gateway:    gateway,
		registries: registries,
		apps:       make(map[push.Platform]push.PlatformApplication, len(credentials)),
		logger:     logger.With("component", "Registrar"),
	}

	// Fixed iteration order so a partial failure is reproducible.
	for _, platform := range push.Platforms {
		creds, ok := credentials[platform]
		if !ok {
			continue
		}
		if creds.Credential == "" {
			r.teardown(ctx)
			return nil, fmt.Errorf("platform %s: missing credential", platform)
		}
		app, err := gateway.CreatePlatformApplication(ctx, platform, creds.Principal, creds.Credential, applicationName)
		if err != nil {
			r.teardown(ctx)
			return nil, fmt.Errorf("create platform application for %s: %w", platform, err)
		}
		r.apps[platform] = app
		r.logger.Info("Platform application ready", "platform", platform, "handle", app.Handle)
	}

	if len(r.apps) == 0 {
		return nil, fmt.Errorf("no platform credentials configured")
	}
	return r, nil
}

// Close deletes every platform application. Best-effort; errors are logged.
func (r *Registrar) Close(ctx context.Context) {
	r.teardown(ctx)
}

func (r *Registrar) teardown(ctx context.Context) {
	for platform, app := range r.apps {
		if err := r.gateway.DeletePlatformApplication(ctx, app); err != nil {
			r.logger.Warn("Failed to delete platform application", "platform", platform, "err", err)
			continue
		}
		r.logger.Info("Deleted platform application", "platform", platform)
	}
	r.apps = make(map[push.Platform]push.PlatformApplication)
}

// Platforms lists the platforms that were bootstrapped.
func (r *Registrar) Platforms() []push.Platform {
	platforms := make([]push.Platform, 0, len(r.apps))
	for _, p := range push.Platforms {
		if _, ok := r.apps[p]; ok {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

// Register binds a device to a provider endpoint and records the mapping.
// The provider call happens before any registry mutation, so a provider
// failure leaves the registry untouched and propagates to the caller.
// Re-registering a device swaps the mapping and then releases the endpoint
// it replaced; a failed release is logged, never surfaced.
func (r *Registrar) Register(ctx context.Context, platform push.Platform, device push.DeviceIdentity) (push.EndpointIdentity, error) {
	if device == "" {
		return "", fmt.Errorf("device token is required")
	}
	app, ok := r.apps[platform]
	if !ok {
		return "", fmt.Errorf("platform %s is not configured", platform)
	}
	reg, ok := r.registries.For(platform)
	if !ok {
		return "", fmt.Errorf("platform %s has no registry", platform)
	}

	label := fmt.Sprintf("Gasp %s Platform Endpoint", platform)
	endpoint, err := r.gateway.CreateEndpoint(ctx, app, device, label)
	if err != nil {
		return "", err
	}

	replaced, had := reg.EndpointFor(device)
	reg.Register(device, endpoint)
	r.logger.Info("Registered device", "platform", platform, "endpoint", endpoint)

	if had && replaced != endpoint {
		if err := r.gateway.DeleteEndpoint(ctx, replaced); err != nil {
			r.logger.Warn("Failed to release replaced endpoint", "platform", platform, "endpoint", replaced, "err", err)
		}
	}
	return endpoint, nil
}

// Unregister removes the mapping and releases the endpoint with the
// provider. Unregistering a device that was never registered is a no-op.
func (r *Registrar) Unregister(ctx context.Context, platform push.Platform, device push.DeviceIdentity) error {
	reg, ok := r.registries.For(platform)
	if !ok {
		return fmt.Errorf("platform %s has no registry", platform)
	}
	endpoint, ok := reg.EndpointFor(device)
	if !ok {
		return nil
	}
	reg.Unregister(device)
	if err := r.gateway.DeleteEndpoint(ctx, endpoint); err != nil {
		return err
	}
	r.logger.Info("Unregistered device", "platform", platform, "endpoint", endpoint)
	return nil
}
