package tracking

import (
	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/geo"
	"backend-tanquecheio/internal/trip"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts POST /:id/points on the trips router.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID := trip.UserFromCtx(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user")
		}
		var req geo.Point
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddPoint(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(result)
	})
}
