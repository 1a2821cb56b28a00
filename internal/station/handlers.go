package station

import (
	"backend-tanquecheio/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:id", func(c *fiber.Ctx) error {
		st, err := svc.GetStation(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(st)
	})

	r.Get("/:id/prices/:fuel", func(c *fiber.Ctx) error {
		p, err := svc.Price(c.Context(), c.Params("id"), c.Params("fuel"))
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(p)
	})

	r.Post("/:id/prices", authMiddleware, func(c *fiber.Ctx) error {
		var req PriceReport
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.StationID = c.Params("id")
		created, err := svc.ReportPrice(c.Context(), req)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})
}
