package trip

import (
	"backend-tanquecheio/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the trip routes. authMiddleware must store the caller
// in locals as "user_id"; a trip is only visible to its owner.
func RegisterRoutes(r fiber.Router, tracker *Tracker, defaultIntervalKm float64, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}
		var req StartInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.UserID = userID
		if req.IntervalKm == 0 {
			req.IntervalKm = defaultIntervalKm
		}
		trip, err := tracker.Start(c.Context(), req)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}
		trip, ok, err := tracker.GetActive(c.Context(), userID)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(trip)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		trip, err := ownedTrip(c, tracker)
		if err != nil {
			return err
		}
		return c.JSON(trip)
	})

	r.Get("/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		trip, err := ownedTrip(c, tracker)
		if err != nil {
			return err
		}
		points, err := tracker.Points(c.Context(), trip.ID)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(fiber.Map{"trip_id": trip.ID, "points": points, "count": len(points)})
	})

	r.Post("/:id/notifications/confirm", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			AtKm *float64 `json:"at_km"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		trip, err := ownedTrip(c, tracker)
		if err != nil {
			return err
		}
		atKm := trip.DistanceTraveledKm
		if body.AtKm != nil {
			atKm = *body.AtKm
		}
		trip, err = tracker.ConfirmNotification(c.Context(), trip.ID, atKm)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(trip)
	})

	r.Post("/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		trip, err := ownedTrip(c, tracker)
		if err != nil {
			return err
		}
		summary, err := tracker.Stop(c.Context(), trip.ID)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(summary)
	})
}

// UserFromCtx returns the user id stored by the JWT middleware, if any.
func UserFromCtx(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func requireUser(c *fiber.Ctx) (string, error) {
	uid := UserFromCtx(c)
	if uid == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return uid, nil
}

// ownedTrip loads :id for the caller. Trips of other users answer 404 so
// their ids cannot be guessed.
func ownedTrip(c *fiber.Ctx, tracker *Tracker) (Trip, error) {
	userID, err := requireUser(c)
	if err != nil {
		return Trip{}, err
	}
	trip, err := tracker.GetOwned(c.Context(), c.Params("id"), userID)
	if err != nil {
		return Trip{}, fiber.NewError(apperr.HTTPStatus(err), err.Error())
	}
	return trip, nil
}
