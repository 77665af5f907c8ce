package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventStreamStarted   EventType = "stream.started"
	EventStreamDelta     EventType = "stream.delta"
	EventStreamCompleted EventType = "stream.completed"
	EventStreamError     EventType = "stream.error"
	EventStreamCancelled EventType = "stream.cancelled"

	EventTranslationCompleted EventType = "translation.completed"
	EventTranslationFailed    EventType = "translation.failed"

	EventSessionRecorded EventType = "session.recorded"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus publishes pipeline lifecycle events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	Close()
}

// NewEvent builds an Event with a JSON-encoded payload. A payload that cannot
// be encoded is omitted.
func NewEvent(t EventType, sessionID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// DecodePayload unmarshals the payload of e into a T.
func DecodePayload[T any](e Event) (T, error) {
	var v T
	if len(e.Payload) == 0 {
		return v, NewDomainError("DecodePayload", ErrInvalidInput, "empty payload for "+string(e.Type))
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, WrapOp("DecodePayload", err)
	}
	return v, nil
}
