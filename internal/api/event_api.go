package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/gasp-push-gateway/internal/receipts"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/gasp"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// Broadcaster is the fan-out entry point the event handlers drive.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg push.Message) push.BroadcastResult
}

// ReceiptStore records broadcast results for later lookup.
type ReceiptStore interface {
	Save(ctx context.Context, result push.BroadcastResult) error
	Get(ctx context.Context, id string) (push.BroadcastResult, error)
}

type EventAPI struct {
	broadcaster Broadcaster
	receipts    ReceiptStore // nil when the receipt store is disabled
	logger      *slog.Logger
}

func NewEventAPI(broadcaster Broadcaster, store ReceiptStore, logger *slog.Logger) *EventAPI {
	return &EventAPI{
		broadcaster: broadcaster,
		receipts:    store,
		logger:      logger,
	}
}

// EventHandler accepts one domain record update and triggers the fan-out.
// The response is 202 once every delivery was attempted; individual send
// failures are summarised in the body, never escalated to a failure status.
func (api *EventAPI) EventHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !gasp.KnownKind(kind) {
		response.WriteJSONError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	id, err := decodeEntityID(kind, r)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	api.logger.Info("Domain event received", "kind", kind, "id", id)

	result := api.broadcaster.Broadcast(r.Context(), push.NewUpdateMessage(kind, id))

	if api.receipts != nil {
		if err := api.receipts.Save(r.Context(), result); err != nil {
			// Receipts are an optimisation; the broadcast already happened.
			api.logger.Warn("Failed to save broadcast receipt", "broadcast_id", result.ID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}

// BroadcastHandler returns the stored receipt for one broadcast.
func (api *EventAPI) BroadcastHandler(w http.ResponseWriter, r *http.Request) {
	if api.receipts == nil {
		response.WriteJSONError(w, http.StatusNotFound, "receipts disabled")
		return
	}

	result, err := api.receipts.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, receipts.ErrNotFound) {
		response.WriteJSONError(w, http.StatusNotFound, "no such broadcast")
		return
	}
	if err != nil {
		api.logger.Error("Receipt lookup failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "receipt lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// decodeEntityID parses the posted record for its kind and extracts the id.
func decodeEntityID(kind string, r *http.Request) (int, error) {
	var id int
	switch kind {
	case gasp.KindReviews:
		var rec gasp.Review
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return 0, errors.New("invalid review json")
		}
		id = rec.ID
	case gasp.KindRestaurants:
		var rec gasp.Restaurant
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return 0, errors.New("invalid restaurant json")
		}
		id = rec.ID
	case gasp.KindUsers:
		var rec gasp.User
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return 0, errors.New("invalid user json")
		}
		id = rec.ID
	}
	if id <= 0 {
		return 0, errors.New("missing record id")
	}
	return id, nil
}
