// Package api holds the HTTP handlers: device registration, domain-event
// intake, and broadcast receipt lookup. Handlers decode and validate, call
// into the core, and map results onto status codes; they hold no state of
// their own.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// DeviceRegistrar is the subset of the registrar the device handlers use.
// Mockable for unit tests.
type DeviceRegistrar interface {
	Register(ctx context.Context, platform push.Platform, device push.DeviceIdentity) (push.EndpointIdentity, error)
	Unregister(ctx context.Context, platform push.Platform, device push.DeviceIdentity) error
}

type DeviceAPI struct {
	registrar DeviceRegistrar
	logger    *slog.Logger
}

func NewDeviceAPI(registrar DeviceRegistrar, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		registrar: registrar,
		logger:    logger,
	}
}

type registerRequest struct {
	Token string `json:"token"`
}

type registerResponse struct {
	Endpoint push.EndpointIdentity `json:"endpoint"`
}

// RegisterHandler binds the posted device token on the path's platform.
// Provider failures surface to the caller so the client can retry.
func (api *DeviceAPI) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := api.platformFromPath(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	endpoint, err := api.registrar.Register(r.Context(), platform, push.DeviceIdentity(req.Token))
	if err != nil {
		api.logger.Error("Registration failed", "platform", platform, "err", err)
		if _, isProvider := push.AsProviderError(err); isProvider {
			response.WriteJSONError(w, http.StatusBadGateway, "push provider rejected registration")
			return
		}
		response.WriteJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(registerResponse{Endpoint: endpoint})
}

// UnregisterHandler removes the posted device token. Unregistering an
// unknown token succeeds; idempotency is preferred for unregister.
func (api *DeviceAPI) UnregisterHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := api.platformFromPath(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.registrar.Unregister(r.Context(), platform, push.DeviceIdentity(req.Token)); err != nil {
		// Log but don't fail hard; the registry entry is already gone.
		api.logger.Warn("Endpoint release failed", "platform", platform, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *DeviceAPI) platformFromPath(w http.ResponseWriter, r *http.Request) (push.Platform, bool) {
	platform, err := push.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		response.WriteJSONError(w, http.StatusNotFound, "unknown platform")
		return "", false
	}
	return platform, true
}
