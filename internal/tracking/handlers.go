package tracking

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

var validate = validator.New()

// TrackingURL is the public viewer link for a session.
func TrackingURL(publicBaseURL, sessionID string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/track/" + sessionID
}

func RegisterRoutes(r fiber.Router, store *Store, publicBaseURL string) {
	r.Post("/update-location", func(c *fiber.Ctx) error {
		var req updateLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "sessionId and a valid location required")
		}
		res, err := store.AppendLocation(req.SessionID, Location{
			Lat:       req.Location.Lat,
			Lng:       req.Location.Lng,
			Timestamp: req.Timestamp,
		})
		if err != nil {
			return storeError(err)
		}
		return c.JSON(fiber.Map{"success": true, "recorded": res.Recorded, "viewersActive": res.Viewers})
	})

	r.Post("/end-session", func(c *fiber.Ctx) error {
		var req endSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "sessionId required")
		}
		if err := store.EndSession(req.SessionID); err != nil {
			return storeError(err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	r.Get("/session/:id", func(c *fiber.Ctx) error {
		snap, err := store.Get(c.Params("id"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(snap)
	})

	r.Get("/session/:id/qr", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := store.Get(id); err != nil {
			return storeError(err)
		}
		png, err := qrcode.Encode(TrackingURL(publicBaseURL, id), qrcode.Medium, qrSize)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(png)
	})
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
