package escalation

import (
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type triggerRequest struct {
	OwnerID  string `json:"ownerId"`
	UID      string `json:"uid"`
	Location *struct {
		Lat float64 `json:"lat" validate:"latitude"`
		Lng float64 `json:"lng" validate:"longitude"`
	} `json:"location" validate:"required"`
}

func (r triggerRequest) owner() string {
	if r.OwnerID != "" {
		return r.OwnerID
	}
	return r.UID
}

func RegisterRoutes(r fiber.Router, coord *Coordinator) {
	r.Post("/trigger", func(c *fiber.Ctx) error {
		var req triggerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil || req.owner() == "" {
			return fiber.NewError(fiber.StatusBadRequest, "ownerId and a valid location required")
		}

		res, err := coord.Escalate(c.Context(), req.owner(), geo.Point{Lat: req.Location.Lat, Lng: req.Location.Lng})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"success":     true,
			"sessionId":   res.SessionID,
			"trackingUrl": res.TrackingURL,
			"results":     res.Results,
		})
	})
}
