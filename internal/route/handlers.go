package route

import (
	"errors"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req createRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		owner := req.OwnerID
		if owner == "" {
			owner = req.UID
		}
		if err := validate.Struct(req); err != nil || owner == "" {
			return fiber.NewError(fiber.StatusBadRequest, "ownerId, name and route required")
		}

		points := make([]geo.Point, 0, len(req.Route))
		for _, p := range req.Route {
			points = append(points, geo.Point{Lat: p.Lat, Lng: p.Lng})
		}
		saved, err := svc.Create(c.Context(), SavedRoute{OwnerID: owner, Name: req.Name, Points: points})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		owner := c.Query("ownerId")
		if owner == "" {
			return fiber.NewError(fiber.StatusBadRequest, "ownerId query required")
		}
		routes, err := svc.ListByOwner(c.Context(), owner)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if routes == nil {
			routes = []SavedRoute{}
		}
		return c.JSON(routes)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		saved, err := svc.Get(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(saved)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		err := svc.Delete(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
