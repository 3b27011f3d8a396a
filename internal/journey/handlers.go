package journey

import (
	"context"
	"errors"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/deviation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/route"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// RouteSource resolves a saved route id into its points.
type RouteSource interface {
	Points(ctx context.Context, id string) ([]geo.Point, error)
}

type startRequest struct {
	OwnerID string       `json:"ownerId" validate:"required"`
	RouteID string       `json:"routeId"`
	Route   []routePoint `json:"route" validate:"dive"`
}

type routePoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

type positionRequestBody struct {
	Lat       float64    `json:"lat" validate:"latitude"`
	Lng       float64    `json:"lng" validate:"longitude"`
	Accel     [3]float64 `json:"accel"`
	Gyro      [3]float64 `json:"gyro"`
	Timestamp time.Time  `json:"timestamp"`
}

func RegisterRoutes(r fiber.Router, reg *Registry, routes RouteSource) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "ownerId and valid route points required")
		}

		points := make([]geo.Point, 0, len(req.Route))
		for _, p := range req.Route {
			points = append(points, geo.Point{Lat: p.Lat, Lng: p.Lng})
		}
		if len(points) == 0 && req.RouteID != "" {
			if routes == nil {
				return fiber.NewError(fiber.StatusBadRequest, "saved routes are not available")
			}
			saved, err := routes.Points(c.Context(), req.RouteID)
			if errors.Is(err, route.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			points = saved
		}

		j, err := reg.Start(req.OwnerID, points)
		if err != nil {
			return journeyError(err)
		}
		st, err := j.Status(c.Context())
		if err != nil {
			return journeyError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(st)
	})

	r.Post("/:ownerId/position", func(c *fiber.Ctx) error {
		var req positionRequestBody
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "valid lat and lng required")
		}
		j, err := reg.Get(c.Params("ownerId"))
		if err != nil {
			return journeyError(err)
		}
		st, err := j.Submit(c.Context(), Position{
			Point: geo.Point{Lat: req.Lat, Lng: req.Lng},
			Accel: req.Accel,
			Gyro:  req.Gyro,
			At:    req.Timestamp,
		})
		if err != nil {
			return journeyError(err)
		}
		return c.JSON(st)
	})

	r.Post("/:ownerId/confirm-safe", func(c *fiber.Ctx) error {
		j, err := reg.Get(c.Params("ownerId"))
		if err != nil {
			return journeyError(err)
		}
		st, err := j.ConfirmSafe(c.Context())
		if err != nil {
			return journeyError(err)
		}
		return c.JSON(st)
	})

	r.Get("/:ownerId", func(c *fiber.Ctx) error {
		j, err := reg.Get(c.Params("ownerId"))
		if err != nil {
			return journeyError(err)
		}
		st, err := j.Status(c.Context())
		if err != nil {
			return journeyError(err)
		}
		return c.JSON(st)
	})

	r.Delete("/:ownerId", func(c *fiber.Ctx) error {
		st, err := reg.Stop(c.Params("ownerId"))
		if err != nil {
			return journeyError(err)
		}
		return c.JSON(st)
	})
}

func journeyError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStopped):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, deviation.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyRoute):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
