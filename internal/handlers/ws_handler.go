package handlers

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"palaver/internal/notify"
	"palaver/internal/services"
)

// WsHandler upgrades authenticated clients to a websocket and runs one
// delivery loop per connection.
type WsHandler struct {
	authService *services.AuthService
	registry    *notify.Registry
}

// NewWsHandler creates a new WsHandler.
func NewWsHandler(authService *services.AuthService, registry *notify.Registry) *WsHandler {
	return &WsHandler{
		authService: authService,
		registry:    registry,
	}
}

// RegisterRoutes registers the websocket route with the Fiber app.
func (h *WsHandler) RegisterRoutes(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.HandleWebsocket))
}

// HandleWebsocket authenticates by the token query parameter, registers a
// connection under the owner, and keeps reading until the peer disconnects.
// The delivery loop deregisters the connection when it exits.
func (h *WsHandler) HandleWebsocket(c *websocket.Conn) {
	token := c.Query("token")
	user, err := h.authService.Authorize(token, "", "")
	if err != nil {
		_ = c.WriteMessage(websocket.TextMessage, []byte("Unauthorized"))
		_ = c.Close()
		return
	}

	// Greet before the delivery loop starts: the wire permits only one
	// writer at a time, and once Run is going it owns the write side.
	if err := c.WriteMessage(websocket.TextMessage, []byte("Authorized!")); err != nil {
		return
	}

	conn := notify.NewConn(user.ID, c, h.registry)
	h.registry.Add(conn)
	go conn.Run()

	log.Printf("Websocket connected for user %s (conn %s)", user.ID, conn.ID)

	// Inbound frames are not part of the protocol; the read pump only
	// detects disconnects.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	// Returning hands the conn back to the wrapper, which closes it. Wait
	// for the loop to exit first so that close cannot race a frame write.
	conn.Stop()
	conn.Wait()
	log.Printf("Websocket closed for user %s (conn %s)", user.ID, conn.ID)
}
