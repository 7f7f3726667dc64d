/*
Package realtime manages live websocket connections: per-connection lifecycle,
authentication at handshake time, presence snapshot broadcasts, and best-effort
point-to-point message relay.

This file defines the wire envelope exchanged with clients.
*/
package realtime

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of event carried by an envelope.
type EventType string

const (
	// EventPresenceSnapshot carries the full set of online user ids,
	// broadcast to every connection after each presence change.
	EventPresenceSnapshot EventType = "PRESENCE_SNAPSHOT"

	// EventMessageDelivered carries a persisted message, pushed to the
	// recipient's connections only.
	EventMessageDelivered EventType = "MESSAGE_DELIVERED"
)

// Event is the server-to-client wire envelope.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresenceSnapshotPayload is the payload of a PRESENCE_SNAPSHOT event.
type PresenceSnapshotPayload struct {
	UserIDs []string `json:"userIds"`
}

// NewEvent builds an envelope with the payload serialized in place.
func NewEvent(eventType EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Event{Type: eventType, Payload: raw}, nil
}
