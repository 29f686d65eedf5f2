package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/gasp-push-gateway/internal/api"
	"github.com/tinywideclouds/gasp-push-gateway/internal/receipts"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// --- Mocks ---

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, msg push.Message) push.BroadcastResult {
	args := m.Called(ctx, msg)
	return args.Get(0).(push.BroadcastResult)
}

type MockReceiptStore struct {
	mock.Mock
}

func (m *MockReceiptStore) Save(ctx context.Context, result push.BroadcastResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockReceiptStore) Get(ctx context.Context, id string) (push.BroadcastResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(push.BroadcastResult), args.Error(1)
}

// --- Setup ---

func eventTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newKindRequest(kind string, body []byte) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/events/"+kind, bytes.NewReader(body))
	req.SetPathValue("kind", kind)
	return req
}

func sampleResult() push.BroadcastResult {
	return push.BroadcastResult{
		ID: "b-1",
		Platforms: map[push.Platform]push.PlatformDelivery{
			push.PlatformAPNS: {Attempted: 2, Failed: 1},
		},
	}
}

// --- Tests ---

func TestEventHandler(t *testing.T) {
	t.Run("Review update triggers a broadcast", func(t *testing.T) {
		broadcaster := new(MockBroadcaster)
		handler := api.NewEventAPI(broadcaster, nil, eventTestLogger())
		body, _ := json.Marshal(map[string]any{"id": 42, "comment": "great", "star": "5"})

		broadcaster.On("Broadcast", mock.Anything, push.NewUpdateMessage("reviews", 42)).
			Return(sampleResult())

		w := httptest.NewRecorder()
		handler.EventHandler(w, newKindRequest("reviews", body))

		require.Equal(t, http.StatusAccepted, w.Code)
		var result push.BroadcastResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "b-1", result.ID)
		assert.Equal(t, 2, result.Attempted())
		broadcaster.AssertExpectations(t)
	})

	t.Run("Restaurant and user kinds broadcast too", func(t *testing.T) {
		for kind, body := range map[string][]byte{
			"restaurants": []byte(`{"id": 3, "name": "Trattoria"}`),
			"users":       []byte(`{"id": 9, "name": "pat"}`),
		} {
			broadcaster := new(MockBroadcaster)
			handler := api.NewEventAPI(broadcaster, nil, eventTestLogger())

			var expectedID int
			_, _ = fmt.Sscanf(string(body), `{"id": %d`, &expectedID)
			broadcaster.On("Broadcast", mock.Anything, push.NewUpdateMessage(kind, expectedID)).
				Return(sampleResult())

			w := httptest.NewRecorder()
			handler.EventHandler(w, newKindRequest(kind, body))

			assert.Equal(t, http.StatusAccepted, w.Code, kind)
			broadcaster.AssertExpectations(t)
		}
	})

	t.Run("Unknown kind is 404", func(t *testing.T) {
		broadcaster := new(MockBroadcaster)
		handler := api.NewEventAPI(broadcaster, nil, eventTestLogger())

		w := httptest.NewRecorder()
		handler.EventHandler(w, newKindRequest("dishes", []byte(`{"id": 1}`)))

		assert.Equal(t, http.StatusNotFound, w.Code)
		broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	})

	t.Run("Missing record id is 400", func(t *testing.T) {
		broadcaster := new(MockBroadcaster)
		handler := api.NewEventAPI(broadcaster, nil, eventTestLogger())

		w := httptest.NewRecorder()
		handler.EventHandler(w, newKindRequest("reviews", []byte(`{"comment": "no id"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Receipt is saved when the store is enabled", func(t *testing.T) {
		broadcaster := new(MockBroadcaster)
		store := new(MockReceiptStore)
		handler := api.NewEventAPI(broadcaster, store, eventTestLogger())
		result := sampleResult()

		broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(result)
		store.On("Save", mock.Anything, result).Return(nil)

		w := httptest.NewRecorder()
		handler.EventHandler(w, newKindRequest("reviews", []byte(`{"id": 1}`)))

		assert.Equal(t, http.StatusAccepted, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("Receipt save failure does not fail the request", func(t *testing.T) {
		broadcaster := new(MockBroadcaster)
		store := new(MockReceiptStore)
		handler := api.NewEventAPI(broadcaster, store, eventTestLogger())

		broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(sampleResult())
		store.On("Save", mock.Anything, mock.Anything).Return(fmt.Errorf("redis down"))

		w := httptest.NewRecorder()
		handler.EventHandler(w, newKindRequest("reviews", []byte(`{"id": 1}`)))

		assert.Equal(t, http.StatusAccepted, w.Code)
	})
}

func TestBroadcastHandler(t *testing.T) {
	newLookupRequest := func(id string) *http.Request {
		req := httptest.NewRequest("GET", "/api/v1/broadcasts/"+id, nil)
		req.SetPathValue("id", id)
		return req
	}

	t.Run("Returns the stored receipt", func(t *testing.T) {
		store := new(MockReceiptStore)
		handler := api.NewEventAPI(new(MockBroadcaster), store, eventTestLogger())

		store.On("Get", mock.Anything, "b-1").Return(sampleResult(), nil)

		w := httptest.NewRecorder()
		handler.BroadcastHandler(w, newLookupRequest("b-1"))

		require.Equal(t, http.StatusOK, w.Code)
		var result push.BroadcastResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "b-1", result.ID)
	})

	t.Run("Unknown broadcast is 404", func(t *testing.T) {
		store := new(MockReceiptStore)
		handler := api.NewEventAPI(new(MockBroadcaster), store, eventTestLogger())

		store.On("Get", mock.Anything, "nope").Return(push.BroadcastResult{}, receipts.ErrNotFound)

		w := httptest.NewRecorder()
		handler.BroadcastHandler(w, newLookupRequest("nope"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Disabled store is 404", func(t *testing.T) {
		handler := api.NewEventAPI(new(MockBroadcaster), nil, eventTestLogger())

		w := httptest.NewRecorder()
		handler.BroadcastHandler(w, newLookupRequest("b-1"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
