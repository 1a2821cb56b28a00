package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes /ws/:userID. authMiddleware must set user_id in
// locals and only that user may open the feed. Sockets are receive-only;
// anything the client writes is read and dropped to keep the connection alive.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/ws/:userID", authMiddleware, ownFeed, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("userID"))

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

func ownFeed(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	if uid != c.Params("userID") {
		return fiber.NewError(fiber.StatusForbidden, "feed belongs to another user")
	}
	return c.Next()
}
