/*
Package realtime manages live websocket connections.

This file defines the Conn struct, one live websocket connection bound to an
authenticated user. It runs the read/write pumps, the heartbeat, and the
exactly-once teardown that releases the presence binding.
*/
package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/app/user"
	"pairchat/internal/pkg/logx"
)

const (
	// timeout for writing a frame to the websocket.
	writeWait = 10 * time.Second

	// maximum time to wait for a Pong from the client.
	pongWait = 60 * time.Second

	// frequency of server Ping frames.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size of an inbound frame. Clients send messages over
	// HTTP; inbound websocket traffic is heartbeat-only.
	maxInboundBytes = 512

	// size of the per-connection outbound queue.
	sendQueueSize = 256
)

// ConnState tracks the connection lifecycle.
// Transitions: Connecting -> Authenticated -> Open -> Closed. A connection
// that never presents an identity goes straight to Closed.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

// Conn is one live websocket connection bound to an authenticated user.
type Conn struct {
	// id identifies this connection; it is the registry binding key.
	id string

	// channel is the hub this connection is attached to.
	channel *Channel

	// identity is the authenticated user behind the connection.
	identity user.Identity

	// ws is the underlying websocket.
	ws *websocket.Conn

	// send queues outbound frames for the write pump.
	send chan []byte

	// done is closed by teardown so the write pump exits without waiting
	// for the next write to fail.
	done chan struct{}

	// stateMu guards state.
	stateMu sync.Mutex
	state   ConnState

	// closeOnce guarantees the registry unbind runs exactly once per
	// connection, however many disconnect signals the transport produces.
	closeOnce sync.Once

	logger zerolog.Logger
}

func newConn(id string, channel *Channel, identity user.Identity, ws *websocket.Conn) *Conn {
	connLogger := logx.Logger().With().
		Str("component", "RealtimeConn").
		Str("conn_id", id).
		Str("user_id", identity.ID).
		Logger()

	return &Conn{
		id:       id,
		channel:  channel,
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		state:    StateConnecting,
		logger:   connLogger,
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the authenticated user behind the connection.
func (c *Conn) Identity() user.Identity {
	return c.identity
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// ReadPump consumes inbound frames until the transport drops. It exists to
// service pong handling and to detect disconnects; data frames are ignored.
// It blocks, and triggers teardown on exit.
func (c *Conn) ReadPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxInboundBytes)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended")
			}
			return
		}
	}
}

// WritePump drains the send queue onto the websocket and keeps the heartbeat
// going. It terminates when teardown signals done or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case <-c.done:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
			}
			return

		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// enqueue queues a frame without blocking. A full queue means the client is
// not keeping up; the frame is dropped and the connection torn down. The
// teardown runs in its own goroutine because enqueue may be called while the
// channel lock is held.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Connection send queue full, dropping frame and closing")
		go c.teardown()
		return false
	}
}

// teardown detaches the connection from the channel and closes the transport.
// Both read and write pumps call it; it runs once.
func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.channel.detach(c)
		close(c.done)

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Websocket close error during teardown")
		}

		c.logger.Info().Msg("Connection closed.")
	})
}
