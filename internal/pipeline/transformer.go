// Package pipeline adapts the Pub/Sub ingestion path: raw messages become
// domain events, domain events become broadcasts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/gasp"
)

// DomainEvent is the Pub/Sub form of one entity change: which collection
// changed and which record.
type DomainEvent struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

// DomainEventTransformer unmarshals and validates a raw message payload
// into a DomainEvent. Malformed or unknown-kind messages are skipped so the
// streaming service can handle the Nack/DLQ logic.
func DomainEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*DomainEvent, bool, error) {
	var event DomainEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal domain event from message %s: %w", msg.ID, err)
	}
	if !gasp.KnownKind(event.Kind) {
		return nil, true, fmt.Errorf("message %s has unknown entity kind %q", msg.ID, event.Kind)
	}
	if event.ID <= 0 {
		return nil, true, fmt.Errorf("message %s is missing a record id", msg.ID)
	}
	return &event, false, nil
}
