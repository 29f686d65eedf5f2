// Package direct implements the push gateway without an intermediary
// provider: APNs traffic goes through apns2, GCM traffic through Firebase
// messaging. Endpoint handles are minted locally, so "endpoint" lifecycle
// operations only mutate the gateway's own binding table.
package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// APNSClient is the subset of apns2.Client the gateway uses, for mocking.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// MessagingClient is the subset of the Firebase messaging API the gateway
// uses; *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type binding struct {
	platform push.Platform
	device   push.DeviceIdentity
}

type application struct {
	platform push.Platform
	apns     APNSClient
	fcm      MessagingClient
}

type Gateway struct {
	logger *slog.Logger

	mu        sync.RWMutex
	apps      map[string]*application
	endpoints map[push.EndpointIdentity]binding

	// Client builders, replaceable in tests.
	newAPNSClient func(platform push.Platform, principal, credential string) (APNSClient, error)
	newFCMClient  func(ctx context.Context, credential string) (MessagingClient, error)
}

func NewGateway(logger *slog.Logger) *Gateway {
	return &Gateway{
		logger:        logger.With("component", "DirectGateway"),
		apps:          make(map[string]*application),
		endpoints:     make(map[push.EndpointIdentity]binding),
		newAPNSClient: newAPNSClient,
		newFCMClient:  newFCMClient,
	}
}

func newAPNSClient(platform push.Platform, principal, credential string) (APNSClient, error) {
	// principal carries the PEM certificate, credential the PEM key.
	cert, err := certificate.FromPemBytes([]byte(principal+"\n"+credential), "")
	if err != nil {
		return nil, fmt.Errorf("parse APNs certificate: %w", err)
	}
	client := apns2.NewClient(cert)
	if platform == push.PlatformAPNSSandbox {
		client.Development()
	} else {
		client.Production()
	}
	return client, nil
}

func newFCMClient(ctx context.Context, credential string) (MessagingClient, error) {
	// credential is the service-account JSON for the Firebase project.
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credential)))
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	return client, nil
}

func (g *Gateway) CreatePlatformApplication(ctx context.Context, platform push.Platform, principal, credential, applicationName string) (push.PlatformApplication, error) {
	app := &application{platform: platform}
	var err error
	switch {
	case platform.IsApple():
		app.apns, err = g.newAPNSClient(platform, principal, credential)
	case platform == push.PlatformGCM:
		app.fcm, err = g.newFCMClient(ctx, credential)
	default:
		err = fmt.Errorf("platform %s has no direct delivery client", platform)
	}
	if err != nil {
		return push.PlatformApplication{}, g.wrap("CreatePlatformApplication", platform, "", "", push.OriginClient, err)
	}

	handle := fmt.Sprintf("direct:%s:%s:%s", platform, applicationName, uuid.NewString())
	g.mu.Lock()
	g.apps[handle] = app
	g.mu.Unlock()

	g.logger.Debug("Created platform application", "platform", platform, "handle", handle)
	return push.PlatformApplication{Platform: platform, Handle: handle}, nil
}

func (g *Gateway) CreateEndpoint(ctx context.Context, app push.PlatformApplication, device push.DeviceIdentity, label string) (push.EndpointIdentity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.apps[app.Handle]; !ok {
		err := fmt.Errorf("unknown platform application %q", app.Handle)
		return "", g.wrap("CreateEndpoint", app.Platform, "", device, push.OriginClient, err)
	}
	endpoint := push.EndpointIdentity(fmt.Sprintf("%s/endpoint/%s", app.Handle, uuid.NewString()))
	g.endpoints[endpoint] = binding{platform: app.Platform, device: device}
	return endpoint, nil
}

func (g *Gateway) Send(ctx context.Context, endpoint push.EndpointIdentity, payload string) error {
	g.mu.RLock()
	bound, ok := g.endpoints[endpoint]
	var app *application
	for _, candidate := range g.apps {
		if candidate.platform == bound.platform {
			app = candidate
			break
		}
	}
	g.mu.RUnlock()

	if !ok || app == nil {
		err := fmt.Errorf("%w: no binding for endpoint", push.ErrEndpointDisabled)
		return g.wrap("Send", bound.platform, endpoint, "", push.OriginClient, err)
	}

	switch {
	case bound.platform.IsApple():
		return g.sendAPNS(ctx, app.apns, bound, endpoint, payload)
	case bound.platform == push.PlatformGCM:
		return g.sendFCM(ctx, app.fcm, bound, endpoint, payload)
	default:
		err := fmt.Errorf("platform %s has no direct delivery client", bound.platform)
		return g.wrap("Send", bound.platform, endpoint, "", push.OriginClient, err)
	}
}

func (g *Gateway) sendAPNS(ctx context.Context, client APNSClient, bound binding, endpoint push.EndpointIdentity, payload string) error {
	notification := &apns2.Notification{
		DeviceToken: string(bound.device),
		Payload:     []byte(payload), // already the aps wire shape
	}
	resp, err := client.PushWithContext(ctx, notification)
	if err != nil {
		return g.wrap("Send", bound.platform, endpoint, bound.device, push.OriginClient, err)
	}
	if resp.Sent() {
		return nil
	}
	reasonErr := fmt.Errorf("apns rejected: %s", resp.Reason)
	if resp.Reason == apns2.ReasonBadDeviceToken || resp.Reason == apns2.ReasonUnregistered {
		reasonErr = fmt.Errorf("%w: %s", push.ErrEndpointDisabled, resp.Reason)
	}
	return g.wrap("Send", bound.platform, endpoint, bound.device, push.OriginService, reasonErr)
}

// gcmEnvelope mirrors the GCM codec output so the encoded payload can be
// re-expressed as a Firebase message.
type gcmEnvelope struct {
	CollapseKey string            `json:"collapse_key"`
	Data        map[string]string `json:"data"`
}

func (g *Gateway) sendFCM(ctx context.Context, client MessagingClient, bound binding, endpoint push.EndpointIdentity, payload string) error {
	var envelope gcmEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return g.wrap("Send", bound.platform, endpoint, bound.device, push.OriginClient, fmt.Errorf("decode gcm payload: %w", err))
	}

	msg := &messaging.Message{
		Token:   string(bound.device),
		Data:    envelope.Data,
		Android: &messaging.AndroidConfig{CollapseKey: envelope.CollapseKey},
	}
	_, err := client.Send(ctx, msg)
	if err != nil {
		origin := push.OriginClient
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			origin = push.OriginService
		}
		if messaging.IsRegistrationTokenNotRegistered(err) {
			err = fmt.Errorf("%w: %w", push.ErrEndpointDisabled, err)
		}
		return g.wrap("Send", bound.platform, endpoint, bound.device, origin, err)
	}
	return nil
}

func (g *Gateway) DeleteEndpoint(ctx context.Context, endpoint push.EndpointIdentity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.endpoints, endpoint) // unknown endpoint deletes are a no-op
	return nil
}

func (g *Gateway) DeletePlatformApplication(ctx context.Context, app push.PlatformApplication) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.apps, app.Handle)
	for endpoint, bound := range g.endpoints {
		if bound.platform == app.Platform {
			delete(g.endpoints, endpoint)
		}
	}
	return nil
}

func (g *Gateway) wrap(op string, platform push.Platform, endpoint push.EndpointIdentity, device push.DeviceIdentity, origin push.ErrorOrigin, err error) *push.ProviderError {
	var pe *push.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &push.ProviderError{
		Op:       op,
		Origin:   origin,
		Platform: platform,
		Endpoint: endpoint,
		Device:   device,
		Err:      err,
	}
}
