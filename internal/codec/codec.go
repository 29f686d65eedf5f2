// Package codec turns a generic push.Message into the wire payload each
// platform expects. Encoding is pure and deterministic: same message in,
// byte-identical payload out.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// Platform payload defaults, matching the shapes the provider documents for
// each network.
const (
	DefaultBadge        = 1
	DefaultSound        = "default"
	DefaultTimeToLive   = 125  // seconds, GCM
	DefaultExpiresAfter = 1000 // seconds, ADM
)

type aps struct {
	Alert string `json:"alert"`
	Badge int    `json:"badge"`
	Sound string `json:"sound"`
}

type applePayload struct {
	APS aps `json:"aps"`
}

type googlePayload struct {
	CollapseKey    string            `json:"collapse_key,omitempty"`
	Data           map[string]string `json:"data"`
	DelayWhileIdle bool              `json:"delay_while_idle"`
	TimeToLive     int               `json:"time_to_live"`
	DryRun         bool              `json:"dry_run"`
}

type admPayload struct {
	Data             map[string]string `json:"data"`
	ConsolidationKey string            `json:"consolidationKey,omitempty"`
	ExpiresAfter     int               `json:"expiresAfter"`
}

// Encode produces the wire-ready payload for one platform.
func Encode(platform push.Platform, msg push.Message) (string, error) {
	switch platform {
	case push.PlatformAPNS, push.PlatformAPNSSandbox:
		return marshal(applePayload{APS: aps{
			Alert: msg.Text,
			Badge: orDefault(msg.Badge, DefaultBadge),
			Sound: orDefaultString(msg.Sound, DefaultSound),
		}})
	case push.PlatformGCM:
		return marshal(googlePayload{
			CollapseKey:    msg.CollapseKey,
			Data:           map[string]string{"message": msg.Text},
			DelayWhileIdle: msg.DelayWhileIdle,
			TimeToLive:     orDefault(msg.TimeToLive, DefaultTimeToLive),
			DryRun:         msg.DryRun,
		})
	case push.PlatformADM:
		return marshal(admPayload{
			Data:             map[string]string{"message": msg.Text},
			ConsolidationKey: msg.CollapseKey,
			ExpiresAfter:     orDefault(msg.TimeToLive, DefaultExpiresAfter),
		})
	default:
		return "", fmt.Errorf("no codec for platform %q", platform)
	}
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
