// Package push contains the public contracts and domain types for the
// Gasp! push gateway: the platform variants, the generic notification
// message, and the provider-facing Gateway interface.
package push

import (
	"context"
	"fmt"
)

// Platform identifies one push-notification delivery network. The set is
// closed: every variant has exactly one codec and one provider binding.
type Platform string

const (
	PlatformAPNS        Platform = "APNS"
	PlatformAPNSSandbox Platform = "APNS_SANDBOX"
	PlatformGCM         Platform = "GCM"
	PlatformADM         Platform = "ADM"
)

// Platforms lists every supported variant in a fixed order.
var Platforms = []Platform{PlatformAPNS, PlatformAPNSSandbox, PlatformGCM, PlatformADM}

// ParsePlatform maps an external platform name onto the closed variant set.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// IsApple reports whether the platform uses the Apple payload convention.
func (p Platform) IsApple() bool {
	return p == PlatformAPNS || p == PlatformAPNSSandbox
}

// DeviceIdentity is the opaque token a platform's push service issued to one
// installed client (an APNs device token, a GCM registration id). Supplied
// by the client at registration time, immutable once issued.
type DeviceIdentity string

// EndpointIdentity is the opaque handle the push provider returned when a
// DeviceIdentity was bound to a platform application. One-to-one with a
// currently registered device.
type EndpointIdentity string

// PlatformApplication is the provider-side handle for "this app on this
// platform". Created once at startup, torn down at shutdown, immutable in
// between.
type PlatformApplication struct {
	Platform Platform `json:"platform"`
	Handle   string   `json:"handle"`
}

// Message is the platform-agnostic notification payload plus delivery
// hints. Zero-valued hints are filled with platform defaults by the codec.
type Message struct {
	Text           string `json:"text"`
	Badge          int    `json:"badge,omitempty"`
	Sound          string `json:"sound,omitempty"`
	CollapseKey    string `json:"collapse_key,omitempty"`
	DelayWhileIdle bool   `json:"delay_while_idle,omitempty"`
	TimeToLive     int    `json:"time_to_live,omitempty"` // seconds
	DryRun         bool   `json:"dry_run,omitempty"`
}

// NewUpdateMessage builds the notification for one domain change event,
// e.g. NewUpdateMessage("reviews", 42) -> "Gasp! update: reviews/42".
func NewUpdateMessage(entityKind string, entityID int) Message {
	return Message{
		Text:        fmt.Sprintf("Gasp! update: %s/%d", entityKind, entityID),
		CollapseKey: entityKind,
	}
}

// Credentials is the bootstrap secret pair for one platform. Certificate
// platforms carry the certificate as principal and the key as credential;
// single-secret platforms (GCM) leave the principal empty.
type Credentials struct {
	Principal  string
	Credential string
}

// PlatformDelivery summarises one platform's leg of a broadcast.
type PlatformDelivery struct {
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
	Pruned    int `json:"pruned"`
}

// BroadcastResult summarises one fan-out: per-platform counts, no stack
// traces. A broadcast always completes; partial failure is data, not error.
type BroadcastResult struct {
	ID        string                        `json:"id"`
	Platforms map[Platform]PlatformDelivery `json:"platforms"`
}

// Attempted returns the total delivery attempts across platforms.
func (r BroadcastResult) Attempted() int {
	var n int
	for _, d := range r.Platforms {
		n += d.Attempted
	}
	return n
}

// Failed returns the total failed attempts across platforms.
func (r BroadcastResult) Failed() int {
	var n int
	for _, d := range r.Platforms {
		n += d.Failed
	}
	return n
}

// Gateway is the boundary to the push-delivery provider. Implementations
// must not be wrapped in registry locks: every method may block on the
// network.
type Gateway interface {
	// CreatePlatformApplication registers "this app" with the provider once
	// per platform. principal is empty for single-secret platforms (GCM) and
	// carries the certificate for certificate+key platforms (APNS).
	CreatePlatformApplication(ctx context.Context, platform Platform, principal, credential, applicationName string) (PlatformApplication, error)

	// CreateEndpoint binds one device to a platform application.
	CreateEndpoint(ctx context.Context, app PlatformApplication, device DeviceIdentity, label string) (EndpointIdentity, error)

	// Send delivers one already-encoded payload to one endpoint. The
	// provider accepts asynchronously; there is no device-side confirmation.
	Send(ctx context.Context, endpoint EndpointIdentity, payload string) error

	// DeleteEndpoint releases an endpoint. A provider not-found response is
	// treated as success.
	DeleteEndpoint(ctx context.Context, endpoint EndpointIdentity) error

	// DeletePlatformApplication tears down a platform application. Idempotent
	// against a provider not-found response.
	DeletePlatformApplication(ctx context.Context, app PlatformApplication) error
}
