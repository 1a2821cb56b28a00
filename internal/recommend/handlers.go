package recommend

import (
	"strconv"

	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, engine *Engine, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		req, err := parseRequest(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		results, err := engine.Recommend(c.Context(), req)
		if err != nil {
			return fiber.NewError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(fiber.Map{"results": results, "count": len(results)})
	})
}

func parseRequest(c *fiber.Ctx) (Request, error) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return Request{}, fiber.NewError(fiber.StatusBadRequest, "lat required")
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		return Request{}, fiber.NewError(fiber.StatusBadRequest, "lng required")
	}

	req := Request{
		Origin:   geo.Point{Lat: lat, Lng: lng},
		FuelType: c.Query("fuel_type"),
		Mode:     Mode(c.Query("mode")),
	}

	if c.Query("dest_lat") != "" || c.Query("dest_lng") != "" {
		dlat, err1 := strconv.ParseFloat(c.Query("dest_lat"), 64)
		dlng, err2 := strconv.ParseFloat(c.Query("dest_lng"), 64)
		if err1 != nil || err2 != nil {
			return Request{}, fiber.NewError(fiber.StatusBadRequest, "dest_lat and dest_lng must both be numbers")
		}
		req.Destination = &geo.Point{Lat: dlat, Lng: dlng}
	}
	if v := c.Query("radius_km"); v != "" {
		if req.RadiusKm, err = strconv.ParseFloat(v, 64); err != nil {
			return Request{}, fiber.NewError(fiber.StatusBadRequest, "invalid radius_km")
		}
	}
	if v := c.Query("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			return Request{}, fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}
	}
	if v := c.Query("reference_price"); v != "" {
		ref, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Request{}, fiber.NewError(fiber.StatusBadRequest, "invalid reference_price")
		}
		req.ReferencePrice = &ref
	}
	return req, nil
}
