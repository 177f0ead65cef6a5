// Package stream implements the websocket relay between clients and the
// session's completion engine.
package stream

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/gitrecap/backend/internal/logging"
	"github.com/gitrecap/backend/session"
)

var logger = logging.InitLogger()

// UpgradeRequired rejects plain HTTP requests on the websocket routes.
func UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handler serves /ws/:session_id/:mode. The connection pins its session for
// its whole lifetime, so an expiring session closes the socket and the read
// loop exits through the read error.
func Handler(reg *session.Registry) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		sessionID := conn.Params("session_id")
		mode := conn.Params("mode")

		if !ValidMode(mode) {
			conn.WriteJSON(map[string]string{"error": "unknown mode " + mode})
			return
		}

		s, release, err := reg.Acquire(sessionID)
		if err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		defer release()

		if err := reg.AttachSocket(sessionID, conn); err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		defer reg.DetachSocket(sessionID, conn)

		for {
			var req StreamRequest
			if err := conn.ReadJSON(&req); err != nil {
				// Disconnect or expiry; either way the connection is done.
				return
			}
			if err := req.validate(mode); err != nil {
				if werr := conn.WriteJSON(map[string]string{"error": err.Error()}); werr != nil {
					return
				}
				continue
			}

			messages, system := buildPrompt(mode, req)
			streamCtx, cancel := context.WithCancel(context.Background())
			ch, err := s.Engine().Stream(streamCtx, messages, system)
			if err != nil {
				cancel()
				logger.Sugar().Warnf("session %s: starting stream: %v", sessionID, err)
				if werr := conn.WriteJSON(map[string]string{"error": err.Error()}); werr != nil {
					return
				}
				continue
			}
			// Cancelling after relay stops the engine pump when the client
			// went away mid-stream and nobody drains the channel anymore.
			err = relay(conn, ch)
			cancel()
			if err != nil {
				return
			}
		}
	})
}
