package push

import (
	"errors"
	"fmt"
)

// ErrorOrigin distinguishes where a provider failure came from. Both kinds
// are handled identically; the origin exists for observability.
type ErrorOrigin string

const (
	// OriginService marks failures the provider reported (rate limit,
	// invalid endpoint, quota).
	OriginService ErrorOrigin = "service"
	// OriginClient marks transport-level failures (network, timeouts).
	OriginClient ErrorOrigin = "client"
)

// ErrEndpointDisabled is wrapped by providers when a send fails because the
// endpoint is disabled or gone on the provider side. The dispatcher prunes
// the owning registration when it sees this.
var ErrEndpointDisabled = errors.New("endpoint disabled")

// ProviderError is any failure returned by the push-delivery provider,
// annotated with enough context to log usefully.
type ProviderError struct {
	Op       string
	Origin   ErrorOrigin
	Platform Platform
	Endpoint EndpointIdentity
	Device   DeviceIdentity
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("push provider %s (%s, platform=%s): %v", e.Op, e.Origin, e.Platform, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError unwraps err to a ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
