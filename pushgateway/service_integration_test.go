//go:build integration

package pushgateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/gasp-push-gateway/internal/registrar"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
	"github.com/tinywideclouds/gasp-push-gateway/pushgateway"
	"github.com/tinywideclouds/gasp-push-gateway/pushgateway/config"
)

// --- MOCKS ---

// memoryGateway is an in-memory provider: applications and endpoints are
// accepted unconditionally and sends are recorded for assertions.
type memoryGateway struct {
	mu    sync.Mutex
	sends map[push.EndpointIdentity][]string
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{sends: make(map[push.EndpointIdentity][]string)}
}

func (m *memoryGateway) CreatePlatformApplication(ctx context.Context, platform push.Platform, principal, credential, applicationName string) (push.PlatformApplication, error) {
	return push.PlatformApplication{Platform: platform, Handle: "app/" + string(platform)}, nil
}

func (m *memoryGateway) CreateEndpoint(ctx context.Context, app push.PlatformApplication, device push.DeviceIdentity, label string) (push.EndpointIdentity, error) {
	return push.EndpointIdentity(app.Handle + "/endpoint/" + string(device)), nil
}

func (m *memoryGateway) Send(ctx context.Context, endpoint push.EndpointIdentity, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends[endpoint] = append(m.sends[endpoint], payload)
	return nil
}

func (m *memoryGateway) DeleteEndpoint(ctx context.Context, endpoint push.EndpointIdentity) error {
	return nil
}

func (m *memoryGateway) DeletePlatformApplication(ctx context.Context, app push.PlatformApplication) error {
	return nil
}

func (m *memoryGateway) sendsTo(endpoint push.EndpointIdentity) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sends[endpoint]...)
}

// --- TEST ---

func TestPushGateway_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { psClient.Close() })

	t.Run("Full Lifecycle: Register -> Ingest -> Fan-out", func(t *testing.T) {
		// Arrange
		topicID := "gasp-events-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		gateway := newMemoryGateway()
		registries := registry.NewSet([]push.Platform{push.PlatformAPNS, push.PlatformGCM})

		credentials := map[push.Platform]push.Credentials{
			push.PlatformAPNS: {Principal: "cert", Credential: "key"},
			push.PlatformGCM:  {Credential: "api-key"},
		}
		reg, err := registrar.Bootstrap(ctx, gateway, registries, "gasp-snsmobile-service", credentials, logger)
		require.NoError(t, err)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := pushgateway.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2},
			consumer,
			gateway,
			reg,
			registries,
			nil, // receipts disabled
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// Step A: register one device per platform
		appleEndpoint, err := reg.Register(ctx, push.PlatformAPNS, "ios-token-1")
		require.NoError(t, err)
		androidEndpoint, err := reg.Register(ctx, push.PlatformGCM, "android-token-1")
		require.NoError(t, err)

		// Step B: publish a domain event
		payload, _ := json.Marshal(map[string]any{"kind": "reviews", "id": 42})
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		// Assert: both devices got exactly one platform-shaped payload
		require.Eventually(t, func() bool {
			return len(gateway.sendsTo(appleEndpoint)) == 1 && len(gateway.sendsTo(androidEndpoint)) == 1
		}, 10*time.Second, 100*time.Millisecond)

		applePayloads := gateway.sendsTo(appleEndpoint)
		assert.Contains(t, applePayloads[0], `"aps"`)
		assert.Contains(t, applePayloads[0], "Gasp! update: reviews/42")

		androidPayloads := gateway.sendsTo(androidEndpoint)
		assert.Contains(t, androidPayloads[0], `"collapse_key":"reviews"`)
		assert.Contains(t, androidPayloads[0], "Gasp! update: reviews/42")
	})

	t.Run("Malformed events are skipped without stalling the pipeline", func(t *testing.T) {
		topicID := "gasp-events-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		gateway := newMemoryGateway()
		registries := registry.NewSet([]push.Platform{push.PlatformAPNS})
		credentials := map[push.Platform]push.Credentials{
			push.PlatformAPNS: {Principal: "cert", Credential: "key"},
		}
		reg, err := registrar.Bootstrap(ctx, gateway, registries, "gasp-snsmobile-service", credentials, logger)
		require.NoError(t, err)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := pushgateway.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 1},
			consumer, gateway, reg, registries, nil, logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		endpoint, err := reg.Register(ctx, push.PlatformAPNS, "ios-token-2")
		require.NoError(t, err)

		// Garbage first, then a valid event. If the garbage wedged the
		// pipeline, the valid event would never arrive.
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: []byte("not-json")}).Get(ctx)
		require.NoError(t, err)
		payload, _ := json.Marshal(map[string]any{"kind": "users", "id": 7})
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(gateway.sendsTo(endpoint)) == 1
		}, 10*time.Second, 100*time.Millisecond)
		assert.Contains(t, gateway.sendsTo(endpoint)[0], "Gasp! update: users/7")
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
