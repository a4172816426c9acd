package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Event is one row of outbox_events. EventType doubles as the Kafka topic
// and AggregateID as the message key, so events of one aggregate keep
// their order.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

var errUnroutable = errors.New("outbox event needs an event type and aggregate id")

// NewEvent encodes payload as JSON under a fresh UUID.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	if eventType == "" || aggregateID == "" {
		return Event{}, errUnroutable
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s for %s %s: %w", eventType, aggregateType, aggregateID, err)
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
