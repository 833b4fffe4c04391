package outbox

import "encoding/json"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic is events.TopicFor(EventType).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEvent encodes payload as an appointment-scoped event.
func AppointmentEvent(eventType, appointmentID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
