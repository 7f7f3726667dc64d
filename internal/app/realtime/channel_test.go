package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/presence"
	"pairchat/internal/app/user"
)

// testServer upgrades every request and attaches it under the identity named
// by the "as" query parameter.
func testServer(t *testing.T, ch *Channel) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := user.Identity{ID: r.URL.Query().Get("as")}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		conn, err := ch.Attach(identity, ws)
		if err != nil {
			_ = ws.Close()
			return
		}

		go conn.WritePump()
		conn.ReadPump()
	}))

	t.Cleanup(srv.Close)
	return srv
}

func dialAs(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?as=" + userID
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws
}

// readEvent reads the next frame, failing the test on timeout.
func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(frame, &event))
	return event
}

// readSnapshotUntil reads presence snapshots until one satisfies the
// predicate, skipping other event types.
func readSnapshotUntil(t *testing.T, ws *websocket.Conn, ok func([]string) bool) []string {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, ws)
		if event.Type != EventPresenceSnapshot {
			continue
		}

		var payload PresenceSnapshotPayload
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		if ok(payload.UserIDs) {
			return payload.UserIDs
		}
	}

	t.Fatal("expected presence snapshot never arrived")
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestAttachRefusesEmptyIdentity(t *testing.T) {
	ch := NewChannel()

	_, err := ch.Attach(user.Identity{}, nil)

	require.ErrorIs(t, err, presence.ErrNoIdentity)
}

func TestConnectReceivesPresenceSnapshot(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	alice := dialAs(t, srv, "alice")

	ids := readSnapshotUntil(t, alice, func(ids []string) bool {
		return contains(ids, "alice")
	})
	assert.Equal(t, []string{"alice"}, ids)
}

func TestConnectBroadcastsToExistingConnections(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	alice := dialAs(t, srv, "alice")
	readSnapshotUntil(t, alice, func(ids []string) bool { return contains(ids, "alice") })

	bob := dialAs(t, srv, "bob")

	// Both sides converge on the same two-user snapshot.
	assert.Equal(t, []string{"alice", "bob"}, readSnapshotUntil(t, alice, func(ids []string) bool {
		return contains(ids, "bob")
	}))
	assert.Equal(t, []string{"alice", "bob"}, readSnapshotUntil(t, bob, func(ids []string) bool {
		return contains(ids, "alice") && contains(ids, "bob")
	}))
}

func TestDisconnectBroadcastsUpdatedSnapshot(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	alice := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")
	readSnapshotUntil(t, alice, func(ids []string) bool { return contains(ids, "bob") })

	require.NoError(t, bob.Close())

	ids := readSnapshotUntil(t, alice, func(ids []string) bool {
		return !contains(ids, "bob")
	})
	assert.Equal(t, []string{"alice"}, ids)
}

func TestSendReachesEveryRecipientConnection(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	tab1 := dialAs(t, srv, "alice")
	tab2 := dialAs(t, srv, "alice")
	bob := dialAs(t, srv, "bob")

	// Wait for all three to be attached before relaying.
	require.Eventually(t, func() bool {
		return len(ch.Registry().Connections("alice")) == 2 && ch.Registry().IsOnline("bob")
	}, 3*time.Second, 10*time.Millisecond)

	event, err := NewEvent(EventMessageDelivered, map[string]string{"id": "m-1"})
	require.NoError(t, err)

	delivered := ch.Send("alice", event)
	assert.Equal(t, 2, delivered)

	for _, ws := range []*websocket.Conn{tab1, tab2} {
		for {
			got := readEvent(t, ws)
			if got.Type == EventMessageDelivered {
				assert.JSONEq(t, `{"id":"m-1"}`, string(got.Payload))
				break
			}
		}
	}

	// The sender-side connection gets nothing but presence traffic.
	delivered = ch.Send("bob", event)
	assert.Equal(t, 1, delivered)
	for {
		got := readEvent(t, bob)
		if got.Type == EventMessageDelivered {
			break
		}
	}
}

func TestSendToOfflineUserDeliversNothing(t *testing.T) {
	ch := NewChannel()

	event, err := NewEvent(EventMessageDelivered, map[string]string{"id": "m-1"})
	require.NoError(t, err)

	assert.Zero(t, ch.Send("ghost", event))
}

func TestSecondTabKeepsUserOnline(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	tab1 := dialAs(t, srv, "alice")
	dialAs(t, srv, "alice")

	require.Eventually(t, func() bool {
		return len(ch.Registry().Connections("alice")) == 2
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, tab1.Close())

	require.Eventually(t, func() bool {
		return len(ch.Registry().Connections("alice")) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, ch.Registry().IsOnline("alice"))
}

func TestShutdownClosesConnections(t *testing.T) {
	ch := NewChannel()
	srv := testServer(t, ch)

	alice := dialAs(t, srv, "alice")
	require.Eventually(t, func() bool {
		return ch.Registry().IsOnline("alice")
	}, 3*time.Second, 10*time.Millisecond)

	ch.Shutdown()

	require.Eventually(t, func() bool {
		return !ch.Registry().IsOnline("alice")
	}, 3*time.Second, 10*time.Millisecond)

	// The client side observes the transport drop.
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			break
		}
	}

	_, err := ch.Attach(user.Identity{ID: "late"}, nil)
	require.ErrorIs(t, err, ErrChannelClosed)
}
