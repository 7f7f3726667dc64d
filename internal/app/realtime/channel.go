/*
Package realtime manages live websocket connections.

This file defines the Channel struct, the hub that owns the presence registry
and every attached connection. It relays point-to-point events to a recipient's
connections and fans presence snapshots out to everyone.
*/
package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/app/presence"
	"pairchat/internal/app/user"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

// ErrChannelClosed is returned for attaches after Shutdown has run.
var ErrChannelClosed = errors.New("realtime: channel is shut down")

// Channel coordinates all live connections and the presence registry.
type Channel struct {
	// registry is the authority for which identities are online.
	registry *presence.Registry

	// mu protects conns.
	mu sync.RWMutex

	// conns maps connection id to the live connection.
	conns map[string]*Conn

	// closed flips once Shutdown has run; further attaches are refused.
	closed bool

	logger zerolog.Logger
}

// NewChannel constructs a Channel with a fresh, empty presence registry and
// wires the registry's snapshot broadcasts into it.
func NewChannel() *Channel {
	ch := &Channel{
		registry: presence.NewRegistry(),
		conns:    make(map[string]*Conn),
		logger:   logx.Logger().With().Str("component", "RealtimeChannel").Logger(),
	}

	ch.registry.OnChange(ch.broadcastPresence)

	return ch
}

// Registry exposes the presence registry for online lookups.
func (ch *Channel) Registry() *presence.Registry {
	return ch.registry
}

// Attach authenticates and registers a new connection. The caller must have
// verified the identity at handshake time; an empty identity refuses the
// connection before it ever opens. On success the connection is bound in the
// registry (which broadcasts the updated snapshot, including to the new
// connection) and the caller starts the pumps.
func (ch *Channel) Attach(identity user.Identity, ws *websocket.Conn) (*Conn, error) {
	if identity.ID == "" {
		return nil, presence.ErrNoIdentity
	}

	conn := newConn(randx.ConnectionID(), ch, identity, ws)
	conn.setState(StateAuthenticated)

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil, ErrChannelClosed
	}
	ch.conns[conn.id] = conn
	ch.mu.Unlock()

	if err := ch.registry.Bind(identity.ID, conn.id); err != nil {
		ch.mu.Lock()
		delete(ch.conns, conn.id)
		ch.mu.Unlock()
		return nil, err
	}

	conn.setState(StateOpen)

	ch.logger.Info().
		Str("conn_id", conn.id).
		Str("user_id", identity.ID).
		Msg("Connection attached.")

	return conn, nil
}

// Send relays an event to every live connection of the recipient and returns
// how many connections it reached. Zero is not an error: delivery over the
// channel is best-effort, at-most-once, and the message store is the
// durability boundary.
func (ch *Channel) Send(toUserID string, event Event) int {
	frame, err := json.Marshal(event)
	if err != nil {
		ch.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Error marshaling event for relay.")
		return 0
	}

	delivered := 0
	for _, connID := range ch.registry.Connections(toUserID) {
		ch.mu.RLock()
		conn := ch.conns[connID]
		ch.mu.RUnlock()

		if conn == nil {
			continue
		}
		if conn.enqueue(frame) {
			delivered++
		}
	}

	if delivered == 0 {
		ch.logger.Info().
			Str("user_id", toUserID).
			Str("event_type", string(event.Type)).
			Msg("Recipient has no live connection, event dropped.")
	}

	return delivered
}

// broadcastPresence pushes the full online-id snapshot to every connection.
// It runs from inside the registry's locked section, so it must only enqueue.
func (ch *Channel) broadcastPresence(onlineIDs []string) {
	event, err := NewEvent(EventPresenceSnapshot, PresenceSnapshotPayload{UserIDs: onlineIDs})
	if err != nil {
		ch.logger.Error().Err(err).Msg("Error building presence snapshot event.")
		return
	}

	frame, err := json.Marshal(event)
	if err != nil {
		ch.logger.Error().Err(err).Msg("Error marshaling presence snapshot event.")
		return
	}

	ch.mu.RLock()
	defer ch.mu.RUnlock()

	for _, conn := range ch.conns {
		conn.enqueue(frame)
	}
}

// detach removes a connection and releases its presence binding. Called from
// the connection's one-shot teardown, so the unbind runs exactly once even
// when the transport signals the disconnect twice.
func (ch *Channel) detach(conn *Conn) {
	ch.mu.Lock()
	if current, ok := ch.conns[conn.id]; ok && current == conn {
		delete(ch.conns, conn.id)
	}
	ch.mu.Unlock()

	ch.registry.Unbind(conn.id)
}

// Shutdown closes every live connection. Used during graceful server stop.
func (ch *Channel) Shutdown() {
	ch.mu.Lock()
	ch.closed = true
	conns := make([]*Conn, 0, len(ch.conns))
	for _, conn := range ch.conns {
		conns = append(conns, conn)
	}
	ch.mu.Unlock()

	for _, conn := range conns {
		conn.teardown()
	}

	ch.logger.Info().Int("connections", len(conns)).Msg("Channel shutdown complete.")
}
