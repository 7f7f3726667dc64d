/*
Package client is the Go SDK for a pairchat server.

This file contains the Session: the authenticated identity, the realtime
connection handle, and the last-received presence snapshot. It reconnects with
bounded retries and a fixed backoff; the authentication session survives
transport reconnects, each of which re-runs the handshake from scratch.
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/app/message"
	"pairchat/internal/app/realtime"
	"pairchat/internal/app/user"
	"pairchat/internal/pkg/logx"
)

const (
	// reconnectAttempts bounds how many times a dropped transport is redialed.
	reconnectAttempts = 5

	// reconnectDelay is the fixed pause between reconnect attempts.
	reconnectDelay = time.Second

	// dialTimeout bounds a single websocket handshake.
	dialTimeout = 10 * time.Second
)

// ErrNotLoggedIn is returned for operations that require an authenticated session.
var ErrNotLoggedIn = errors.New("client: not logged in")

// ErrAlreadyLoggedIn is returned by Login on a session that already holds an
// identity. The caller must Logout first so the existing connection and read
// loop are torn down.
var ErrAlreadyLoggedIn = errors.New("client: already logged in")

// Subscription is a handle to an inbound-message listener. It must be
// released with Close; conversation state swaps subscriptions on peer switch.
type Subscription struct {
	session *Session
	id      int
}

// Close removes the listener. Closing twice is a no-op.
func (s *Subscription) Close() {
	if s == nil || s.session == nil {
		return
	}
	s.session.mu.Lock()
	delete(s.session.subs, s.id)
	s.session.mu.Unlock()
}

// Session holds the authenticated identity, the live transport connection,
// and the current online-user snapshot.
type Session struct {
	api *API

	mu       sync.Mutex
	identity *user.Identity
	ws       *websocket.Conn
	online   map[string]struct{}
	subs     map[int]func(message.Message)
	nextSub  int

	// done is closed on logout so the read loop stops reconnecting.
	done chan struct{}

	logger zerolog.Logger
}

// NewSession constructs a logged-out session over the given API client.
func NewSession(api *API) *Session {
	return &Session{
		api:    api,
		online: make(map[string]struct{}),
		subs:   make(map[int]func(message.Message)),
		logger: logx.Logger().With().Str("component", "ClientSession").Logger(),
	}
}

// API exposes the underlying HTTP client.
func (s *Session) API() *API {
	return s.api
}

// Identity returns the authenticated identity, or nil when logged out.
func (s *Session) Identity() *user.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// Login authenticates and opens exactly one realtime connection tagged with
// the identity. It fails with ErrAlreadyLoggedIn when the session already
// holds an identity.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	if s.identity != nil {
		s.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	s.mu.Unlock()

	identity, token, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	s.api.SetToken(token)

	s.mu.Lock()
	s.identity = &identity
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	ws, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	go s.readLoop(ws, done)
	return nil
}

// Logout closes the realtime connection and clears the identity and the
// presence snapshot.
func (s *Session) Logout() {
	s.mu.Lock()
	ws := s.ws
	done := s.done
	s.ws = nil
	s.identity = nil
	s.done = nil
	s.online = make(map[string]struct{})
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		ws.Close()
	}

	s.api.SetToken("")
}

// IsOnline reports whether the id appears in the last presence snapshot. The
// answer can be transiently stale between a presence change and the next
// broadcast; presence is advisory, not authoritative for delivery.
func (s *Session) IsOnline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[id]
	return ok
}

// OnlineIDs returns the last-received online-id snapshot.
func (s *Session) OnlineIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	return ids
}

// SubscribeMessages registers a listener for inbound delivered messages and
// returns its handle.
func (s *Session) SubscribeMessages(fn func(message.Message)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn

	return &Subscription{session: s, id: id}
}

// dial opens the websocket handshake carrying the session token.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	token := s.api.Token()
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	endpoint, err := wsEndpoint(s.api.baseURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, endpoint+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	return ws, nil
}

// readLoop consumes server events until the transport drops, then attempts a
// bounded reconnect unless the session has logged out.
func (s *Session) readLoop(ws *websocket.Conn, done chan struct{}) {
	for {
		var event realtime.Event
		if err := ws.ReadJSON(&event); err != nil {
			select {
			case <-done:
				return
			default:
			}

			s.logger.Warn().Err(err).Msg("Realtime connection lost, reconnecting.")
			s.reconnect(done)
			return
		}

		s.handleEvent(event)
	}
}

// reconnect redials with a fixed delay between attempts. Each successful
// redial re-runs the handshake from scratch; there is no transport-level
// session resumption.
func (s *Session) reconnect(done chan struct{}) {
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-done:
			return
		case <-time.After(reconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		ws, err := s.dial(ctx)
		cancel()

		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed.")
			continue
		}

		s.mu.Lock()
		s.ws = ws
		s.mu.Unlock()

		s.logger.Info().Int("attempt", attempt).Msg("Realtime connection re-established.")
		go s.readLoop(ws, done)
		return
	}

	s.logger.Error().Int("attempts", reconnectAttempts).Msg("Giving up on realtime reconnection.")
}

// handleEvent applies one server event to the session state.
func (s *Session) handleEvent(event realtime.Event) {
	switch event.Type {
	case realtime.EventPresenceSnapshot:
		var payload realtime.PresenceSnapshotPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.Warn().Err(err).Msg("Invalid presence snapshot payload.")
			return
		}

		// The snapshot replaces the local set wholesale; there are no
		// incremental updates to race with.
		online := make(map[string]struct{}, len(payload.UserIDs))
		for _, id := range payload.UserIDs {
			online[id] = struct{}{}
		}

		s.mu.Lock()
		s.online = online
		s.mu.Unlock()

	case realtime.EventMessageDelivered:
		var msg message.Message
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Invalid delivered message payload.")
			return
		}

		s.mu.Lock()
		listeners := make([]func(message.Message), 0, len(s.subs))
		for _, fn := range s.subs {
			listeners = append(listeners, fn)
		}
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(msg)
		}

	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Ignoring unknown event type.")
	}
}

// wsEndpoint converts the HTTP base URL into the websocket endpoint.
func wsEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	return u.String(), nil
}
