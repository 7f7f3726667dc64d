/*
Package handler provides the HTTP handlers and routing setup for the pairchat server.

This file contains the websocket handshake handler. The connection must carry
a valid session token; a connection without an identity is refused before the
upgrade and never opens.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"pairchat/internal/app/user"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/limiter"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"
)

// handshakeToken pulls the session token from the query string (browser
// websocket clients cannot set headers) or the Authorization header.
func handshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	return ""
}

// HandleWebSocket authenticates the handshake, upgrades the connection, and
// attaches it to the realtime channel.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		token := handshakeToken(r)
		if token == "" {
			logx.Warn("WebSocket connection refused: no identity presented at handshake")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket connection refused: invalid session token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		identity := user.Identity{
			ID:     payload.ID,
			Name:   payload.Name,
			Avatar: payload.Avatar,
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn, err := deps.Channel.Attach(identity, wsConn)
		if err != nil {
			logx.Error(err, "Failed to attach websocket connection", "user_id", identity.ID)
			wsConn.Close()
			return
		}

		logx.Info("WebSocket connection established", "user_id", identity.ID, "conn_id", conn.ID())

		go conn.WritePump()
		conn.ReadPump()
	}
}
