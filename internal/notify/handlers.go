package notify

import (
	"context"
	"errors"

	"backend-tanquecheio/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes exposes the caller's notification inbox.
func RegisterRoutes(r fiber.Router, history History, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}
		limit := c.QueryInt("limit", 50)
		if limit < 1 || limit > 500 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
		}
		records, err := history.List(c.Context(), userID, limit)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(apperr.Dependency("notification history", err)), err.Error())
		}
		return c.JSON(fiber.Map{"notifications": records, "total": len(records)})
	})

	r.Get("/stats", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}
		stats, err := history.Stats(c.Context(), userID)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(apperr.Dependency("notification history", err)), err.Error())
		}
		return c.JSON(stats)
	})

	r.Post("/:id/read", authMiddleware, markHandler(history.MarkRead))
	r.Post("/:id/clicked", authMiddleware, markHandler(history.MarkClicked))
}

type markFunc func(ctx context.Context, userID, id string) (Record, error)

func markHandler(mark markFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}
		rec, err := mark(c.Context(), userID, c.Params("id"))
		if err != nil {
			if !errors.Is(err, ErrNotificationNotFound) {
				err = apperr.Dependency("notification history", err)
			}
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(rec)
	}
}

func requireUser(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return uid, nil
}
