package events

import (
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

// EventEnvelope wraps every payload this engine publishes or consumes on the
// events exchange. PartitionKey is the order ID; Sequence, when present,
// orders messages within that partition.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      *int64    `json:"sequence,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       T         `json:"payload"`
}

// Validate rejects envelopes this consumer cannot apply. The errors are
// validation errors, so a delivery carrying one is dropped, not requeued.
func (e EventEnvelope[T]) Validate(expectedName string, expectedVersion int) error {
	switch {
	case e.EventName != expectedName:
		return apperr.Validation("expected %s, got eventName %q", expectedName, e.EventName)
	case e.EventVersion != expectedVersion:
		return apperr.Validation("%s: unsupported eventVersion %d", expectedName, e.EventVersion)
	case e.EventID == "":
		return apperr.Validation("%s: missing eventId", expectedName)
	case e.PartitionKey == "":
		return apperr.Validation("%s %s: missing partitionKey", expectedName, e.EventID)
	case e.Sequence != nil && *e.Sequence < 1:
		return apperr.Validation("%s %s: sequence must start at 1, got %d", expectedName, e.EventID, *e.Sequence)
	}
	return nil
}
