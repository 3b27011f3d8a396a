package contacts

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/save", func(c *fiber.Ctx) error {
		var req saveRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "uid and emergencyPhone required")
		}
		contact, err := svc.SaveContact(c.Context(),
			Owner{ID: req.UID, Name: req.Name, Phone: req.Phone},
			Contact{Name: req.EmergencyName, Phone: req.EmergencyPhone},
		)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "contact": contact})
	})

	r.Get("/:uid", func(c *fiber.Ctx) error {
		profile, err := svc.Profile(c.Context(), c.Params("uid"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(profile)
	})

	r.Get("/:uid/alerts", func(c *fiber.Ctx) error {
		alerts, err := svc.Alerts(c.Context(), c.Params("uid"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if alerts == nil {
			alerts = []Alert{}
		}
		return c.JSON(alerts)
	})
}
