// Package pubsub provides a generic publish/subscribe event system used for
// log fan-out and scheme bridge load notifications.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// LogEvent carries one formatted log entry.
	LogEvent EventType = "log"

	// Load lifecycle events published by the scheme bridge.
	LoadStarted   EventType = "load.started"
	LoadFinished  EventType = "load.finished"
	LoadFailed    EventType = "load.failed"
	LoadCancelled EventType = "load.cancelled"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
