/*
Package presence tracks which user identities currently hold live connections.

The registry is the single authority for online status. It maps each identity
to the set of its active connection ids, so one user may be online through
several tabs or devices at once. It is an owned object with explicit lifecycle:
empty at process start, rebuilt purely from live connection events, never
persisted.
*/
package presence

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"pairchat/internal/pkg/logx"
)

// ErrNoIdentity is returned when a bind is attempted without a user identity.
var ErrNoIdentity = errors.New("presence: bind requires a user identity")

// Registry maps user identities to their active connection ids.
//
// Every effective bind and unbind recomputes the online-id snapshot and hands
// it to the notify callback while still holding the registry lock, so each
// state change and its broadcast form one atomic step. The callback must not
// block and must not call back into the registry.
type Registry struct {
	mu sync.RWMutex

	// byUser maps a user id to the set of its live connection ids.
	byUser map[string]map[string]struct{}

	// byConn maps a connection id back to the user id it is bound to.
	byConn map[string]string

	// notify receives the full online-id snapshot after each effective change.
	notify func(onlineIDs []string)

	logger zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
		logger: logx.Logger().With().Str("component", "PresenceRegistry").Logger(),
	}
}

// OnChange installs the snapshot callback. It must be set before the first
// bind; the realtime channel installs its broadcast here at construction.
func (reg *Registry) OnChange(notify func(onlineIDs []string)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.notify = notify
}

// Bind associates a connection with a user identity and broadcasts the updated
// snapshot. Binding the same (identity, connection) pair twice is a no-op.
func (reg *Registry) Bind(userID, connID string) error {
	if userID == "" {
		return ErrNoIdentity
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns, ok := reg.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		reg.byUser[userID] = conns
	}

	if _, bound := conns[connID]; bound {
		return nil
	}

	conns[connID] = struct{}{}
	reg.byConn[connID] = userID

	reg.logger.Info().
		Str("user_id", userID).
		Str("conn_id", connID).
		Int("user_connections", len(conns)).
		Msg("Connection bound.")

	reg.notifyLocked()
	return nil
}

// Unbind removes a connection binding and broadcasts the updated snapshot.
// Unbinding a connection id that is not bound is a no-op, not an error, which
// absorbs duplicate disconnect signals from the transport.
func (reg *Registry) Unbind(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	userID, ok := reg.byConn[connID]
	if !ok {
		return
	}

	delete(reg.byConn, connID)

	conns := reg.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(reg.byUser, userID)
	}

	reg.logger.Info().
		Str("user_id", userID).
		Str("conn_id", connID).
		Int("user_connections", len(conns)).
		Msg("Connection unbound.")

	reg.notifyLocked()
}

// IsOnline reports whether the identity holds at least one live connection.
func (reg *Registry) IsOnline(userID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.byUser[userID]) > 0
}

// OnlineIDs returns the sorted set of user ids with at least one binding.
func (reg *Registry) OnlineIDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.onlineIDsLocked()
}

// Connections returns the connection ids currently bound to the identity.
func (reg *Registry) Connections(userID string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	conns := reg.byUser[userID]
	out := make([]string, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	return out
}

func (reg *Registry) onlineIDsLocked() []string {
	ids := make([]string, 0, len(reg.byUser))
	for userID := range reg.byUser {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (reg *Registry) notifyLocked() {
	if reg.notify == nil {
		return
	}
	reg.notify(reg.onlineIDsLocked())
}
